package pipeline

import "fmt"

// Decision is the screening verdict as exposed to callers.
type Decision struct {
	Selected bool   `json:"selected"`
	Reason   string `json:"reason"`
}

// OverallScore carries the numeric screening score.
type OverallScore struct {
	Overall int `json:"overall"`
}

// EnforceThreshold makes the numeric policy the source of truth for the
// screening outcome: after it returns, Selected == (score >= threshold)
// always holds. Model arithmetic is unreliable, so when the model's verdict
// disagrees with the policy the verdict is overridden and a deterministic
// note is prepended to the reason, keeping the model's reasoning as suffix.
// Disagreement is corrected silently; it is never an error.
func EnforceThreshold(decision Decision, score, threshold int) Decision {
	authoritative := score >= threshold
	if decision.Selected == authoritative {
		return decision
	}

	relation := "meets"
	if !authoritative {
		relation = "does not meet"
	}
	note := fmt.Sprintf("Automatic override: score %d %s threshold %d", score, relation, threshold)
	reason := note
	if decision.Reason != "" {
		reason = note + ". " + decision.Reason
	}
	return Decision{Selected: authoritative, Reason: reason}
}
