package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/parser"
)

// Sampling temperatures per task family, matching what each stage needs:
// deterministic output for analysis, some variety for generation.
const (
	temperatureAnalysis = 0.0
	temperatureGenerate = 0.7
	temperatureLinkedIn = 0.3
)

// ProfileFetcher retrieves the raw text of a public profile page. The
// browser-automation implementation lives outside this package; the pipeline
// only depends on this interface.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, url string) (string, error)
}

// QualityScore is the structured verdict of the quality scorer.
type QualityScore struct {
	Clarity int `json:"clarity"`
	Skills  int `json:"skills"`
	Format  int `json:"format"`
	Overall int `json:"overall"`
}

// stageEnv bundles the per-run dependencies the stages close over.
type stageEnv struct {
	chat      model.ToolCallingChatModel
	threshold int
	fetcher   ProfileFetcher
}

// complete issues one blocking completion call and returns the raw text.
func (e *stageEnv) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	msg, err := e.chat.Generate(ctx,
		[]*schema.Message{schema.UserMessage(prompt)},
		model.WithTemperature(float32(temperature)),
	)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// --- score ---

func buildScoreGraph(env *stageEnv) *Graph {
	g := NewGraph(constants.TaskScore)
	g.AddStage("reader", resumeReaderStage())
	g.AddStage("score", qualityScorerStage(env))
	g.SetEntry("reader")
	g.AddEdge("reader", "score")
	g.AddEdge("score", End)
	return g
}

// resumeReaderStage publishes the resume text under the key downstream
// stages read. It makes no external calls.
func resumeReaderStage() StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		return OK(State{"parsed": state.String("resume_text")}), nil
	}
}

func qualityScorerStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		prompt := fmt.Sprintf(qualityScorePrompt, state.String("parsed"))
		raw, err := env.complete(ctx, prompt, temperatureAnalysis)
		if err != nil {
			return Fallback(State{
				"score": QualityScore{},
				"error": fmt.Sprintf("Error scoring resume: %v", err),
			}, err), nil
		}

		var score QualityScore
		if failure := parser.DecodeJSON(raw, &score); failure != nil {
			return Fallback(State{
				"score": QualityScore{},
				"error": fmt.Sprintf("Error parsing score: %v", failure.Err),
			}, failure), nil
		}
		return OK(State{"score": score}), nil
	}
}

// --- skill_gap ---

func buildSkillGapGraph(env *stageEnv) *Graph {
	g := NewGraph(constants.TaskSkillGap)
	g.AddStage("resume_skills", skillExtractorStage(env, "resume_text", resumeSkillsPrompt, "resume_skills"))
	g.AddStage("jd_skills", skillExtractorStage(env, "jd_text", jdSkillsPrompt, "jd_skills"))
	g.AddStage("compare", skillGapDifferStage())
	g.SetEntry("resume_skills")
	g.AddEdge("resume_skills", "jd_skills")
	g.AddEdge("jd_skills", "compare")
	g.AddEdge("compare", End)
	return g
}

// skillExtractorStage is shared by the resume and JD skill extractors; only
// the input key, prompt and output key differ.
func skillExtractorStage(env *stageEnv, inputKey, promptTemplate, outputKey string) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		prompt := fmt.Sprintf(promptTemplate, state.String(inputKey))
		raw, err := env.complete(ctx, prompt, temperatureAnalysis)
		if err != nil {
			return Fallback(State{outputKey: []string{}}, err), nil
		}

		var out struct {
			Skills []string `json:"skills"`
		}
		if failure := parser.DecodeJSON(raw, &out); failure != nil {
			return Fallback(State{outputKey: []string{}}, failure), nil
		}
		if out.Skills == nil {
			out.Skills = []string{}
		}
		return OK(State{outputKey: out.Skills}), nil
	}
}

// skillGapDifferStage is pure; it never fails.
func skillGapDifferStage() StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		gaps := DiffSkills(state.StringSlice("resume_skills"), state.StringSlice("jd_skills"))
		return OK(State{"gaps": gaps}), nil
	}
}

// --- screen ---

func buildScreenGraph(env *stageEnv) *Graph {
	g := NewGraph(constants.TaskScreen)
	g.AddStage("screen", screeningDeciderStage(env))
	g.SetEntry("screen")
	g.AddEdge("screen", End)
	return g
}

func screeningDeciderStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		prompt := fmt.Sprintf(screeningPrompt, state.String("jd_text"), state.String("resume_text"))
		raw, err := env.complete(ctx, prompt, temperatureAnalysis)
		if err != nil {
			decision := EnforceThreshold(Decision{
				Selected: false,
				Reason:   fmt.Sprintf("Error in screening: %v", err),
			}, 0, env.threshold)
			return Fallback(State{
				"decision": decision,
				"score":    OverallScore{},
			}, err), nil
		}

		var out struct {
			Decision Decision     `json:"decision"`
			Score    OverallScore `json:"score"`
		}
		if failure := parser.DecodeJSON(raw, &out); failure != nil {
			decision := EnforceThreshold(Decision{
				Selected: false,
				Reason:   fmt.Sprintf("Error in screening: %v", failure.Err),
			}, 0, env.threshold)
			return Fallback(State{
				"decision": decision,
				"score":    OverallScore{},
			}, failure), nil
		}

		// The numeric score, not the model's verdict, decides the outcome.
		decision := EnforceThreshold(out.Decision, out.Score.Overall, env.threshold)
		return OK(State{
			"decision": decision,
			"score":    out.Score,
		}), nil
	}
}

// --- generate ---

func buildGenerateGraph(env *stageEnv) *Graph {
	g := NewGraph(constants.TaskGenerate)
	g.AddStage("generate", resumeGeneratorStage(env))
	g.SetEntry("generate")
	g.AddEdge("generate", End)
	return g
}

func resumeGeneratorStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		prompt := fmt.Sprintf(generateResumePrompt, state.String("profile_description"))
		raw, err := env.complete(ctx, prompt, temperatureGenerate)
		if err != nil {
			return Fallback(State{"resume_json": failedResume(err)}, err), nil
		}

		var resume map[string]any
		if failure := parser.DecodeJSON(raw, &resume); failure != nil {
			return Fallback(State{"resume_json": failedResume(failure)}, failure), nil
		}
		return OK(State{"resume_json": resume}), nil
	}
}

func failedResume(cause error) map[string]any {
	return map[string]any{
		"summary":    fmt.Sprintf("Failed to generate: %v", cause),
		"experience": []any{},
		"skills":     []any{},
		"education":  []any{},
	}
}

// --- linkedin_to_resume ---

func buildLinkedInGraph(env *stageEnv) *Graph {
	g := NewGraph(constants.TaskLinkedInToResume)
	g.AddStage("fetch", profileFetchStage(env))
	g.AddStage("parse", profileParserStage(env))
	g.AddStage("write", resumeWriterStage(env))
	g.SetEntry("fetch")
	g.AddEdge("fetch", "parse")
	g.AddEdge("parse", "write")
	g.AddEdge("write", End)
	return g
}

func profileFetchStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		url := state.String("linkedin_url")
		if env.fetcher == nil {
			err := fmt.Errorf("no profile fetcher configured")
			return Fallback(State{"raw_profile": fmt.Sprintf("Error: %v", err)}, err), nil
		}
		profileText, err := env.fetcher.FetchProfile(ctx, url)
		if err != nil {
			return Fallback(State{"raw_profile": fmt.Sprintf("Error: %v", err)}, err), nil
		}
		return OK(State{"raw_profile": profileText}), nil
	}
}

func profileParserStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		prompt := fmt.Sprintf(profileParsePrompt, state.String("raw_profile"))
		raw, err := env.complete(ctx, prompt, temperatureLinkedIn)
		if err != nil {
			return Fallback(State{"parsed_profile": unparsedProfile()}, err), nil
		}

		var profile map[string]any
		if failure := parser.DecodeJSON(raw, &profile); failure != nil {
			return Fallback(State{"parsed_profile": unparsedProfile()}, failure), nil
		}
		return OK(State{"parsed_profile": profile}), nil
	}
}

func unparsedProfile() map[string]any {
	return map[string]any{
		"name":       "Error Parsing",
		"headline":   "Could not extract data",
		"experience": []any{},
		"skills":     []any{},
		"education":  []any{},
	}
}

func resumeWriterStage(env *stageEnv) StageFunc {
	return func(ctx context.Context, state State) (StageResult, error) {
		profile, _ := state["parsed_profile"].(map[string]any)

		profileJSON, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			profileJSON = []byte("{}")
		}

		prompt := fmt.Sprintf(resumeWritePrompt, string(profileJSON))
		raw, err := env.complete(ctx, prompt, temperatureLinkedIn)
		if err != nil {
			return Fallback(State{"resume": degradedResumeFromProfile(profile)}, err), nil
		}

		var resume map[string]any
		if failure := parser.DecodeJSON(raw, &resume); failure != nil {
			return Fallback(State{"resume": degradedResumeFromProfile(profile)}, failure), nil
		}
		return OK(State{"resume": resume}), nil
	}
}

// degradedResumeFromProfile salvages whatever the parse stage produced when
// the writer's model call fails.
func degradedResumeFromProfile(profile map[string]any) map[string]any {
	name := any("Unknown")
	skills := any([]any{})
	experience := any([]any{})
	education := any([]any{})
	if profile != nil {
		if v, ok := profile["name"]; ok {
			name = v
		}
		if v, ok := profile["skills"]; ok {
			skills = v
		}
		if v, ok := profile["experience"]; ok {
			experience = v
		}
		if v, ok := profile["education"]; ok {
			education = v
		}
	}
	return map[string]any{
		"contact":    map[string]any{"name": name},
		"summary":    "Error generating structured resume.",
		"skills":     skills,
		"experience": experience,
		"education":  education,
	}
}
