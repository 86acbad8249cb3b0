package pipeline

import (
	"sort"
	"strings"
)

// SkillGapResult is the outcome of comparing candidate skills against role
// requirements. All lists are case-normalized, deduplicated and sorted so
// identical inputs always produce identical output.
type SkillGapResult struct {
	Missing     []string `json:"missing_skills"`
	Matched     []string `json:"matched_skills"`
	Recommended []string `json:"recommended"`
}

// recommendedLimit is the fixed prefix length of the recommendation list; it
// is positional, not ranked by relevance.
const recommendedLimit = 5

// DiffSkills computes missing = required - present and
// matched = required ∩ present over case-folded skill sets.
func DiffSkills(present, required []string) SkillGapResult {
	presentSet := foldSet(present)
	requiredSet := foldSet(required)

	missing := make([]string, 0, len(requiredSet))
	matched := make([]string, 0, len(requiredSet))
	for skill := range requiredSet {
		if presentSet[skill] {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	sort.Strings(missing)
	sort.Strings(matched)

	limit := len(missing)
	if limit > recommendedLimit {
		limit = recommendedLimit
	}
	// Copy so the recommended prefix cannot alias later edits of missing.
	recommended := make([]string, limit)
	copy(recommended, missing)

	return SkillGapResult{
		Missing:     missing,
		Matched:     matched,
		Recommended: recommended,
	}
}

func foldSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, skill := range skills {
		folded := strings.ToLower(strings.TrimSpace(skill))
		if folded == "" {
			continue
		}
		set[folded] = true
	}
	return set
}
