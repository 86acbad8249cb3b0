package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/tracing"
	"resume-agent-go/pkg/ratelimit"
)

// ErrUnknownTask is returned when Run is asked for a task no graph exists
// for. Like a missing credential it is a configuration error and crosses
// the pipeline boundary.
var ErrUnknownTask = errors.New("pipeline: unknown task")

// ActivityEntry describes one completed operation for the audit log.
type ActivityEntry struct {
	TenantID string
	Type     string
	Subject  string
	Score    int
	Decision string
}

// ActivityLogger appends completed operations to the audit log. Write
// failures must not fail the operation that produced the entry.
type ActivityLogger interface {
	RecordActivity(ctx context.Context, entry ActivityEntry) error
}

// Controller is the public entry point of the stage graphs. One instance is
// shared by all callers; per-invocation state is isolated inside Run.
type Controller struct {
	models           *llm.ClientCache
	defaults         llm.ModelConfig
	defaultThreshold int
	qpmLimits        map[string]int
	fetcher          ProfileFetcher
	activity         ActivityLogger
	taskModel        func(task string) string

	// chatFactory resolves the chat client for one invocation; swapped out
	// in tests.
	chatFactory func(cfg llm.ModelConfig) (model.ToolCallingChatModel, error)
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithProfileFetcher wires the external profile scraping collaborator.
func WithProfileFetcher(fetcher ProfileFetcher) ControllerOption {
	return func(c *Controller) {
		c.fetcher = fetcher
	}
}

// WithActivityLogger wires the audit log sink.
func WithActivityLogger(activity ActivityLogger) ControllerOption {
	return func(c *Controller) {
		c.activity = activity
	}
}

// WithTaskModelResolver routes tasks to task-specific models. The resolver
// returns the model name for a task, or "" to keep the default. A caller's
// explicit model override still wins.
func WithTaskModelResolver(resolve func(task string) string) ControllerOption {
	return func(c *Controller) {
		c.taskModel = resolve
	}
}

// WithQPMLimits applies per-model request rate caps.
func WithQPMLimits(limits map[string]int) ControllerOption {
	return func(c *Controller) {
		c.qpmLimits = limits
	}
}

// WithDefaultThreshold overrides the default screening threshold.
func WithDefaultThreshold(threshold int) ControllerOption {
	return func(c *Controller) {
		c.defaultThreshold = threshold
	}
}

// NewController builds a Controller around the shared client cache and the
// configured default model.
func NewController(models *llm.ClientCache, defaults llm.ModelConfig, opts ...ControllerOption) *Controller {
	c := &Controller{
		models:           models,
		defaults:         defaults,
		defaultThreshold: constants.DefaultScreeningThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.chatFactory = func(cfg llm.ModelConfig) (model.ToolCallingChatModel, error) {
		chat, err := c.models.ChatModel(cfg)
		if err != nil {
			return nil, err
		}
		return c.rateLimited(chat, cfg), nil
	}
	return c
}

type runSettings struct {
	model     llm.ModelConfig
	threshold int
	tenantID  string
}

// RunOption customizes one invocation.
type RunOption func(*runSettings)

// WithModelOverride layers caller-supplied model settings over the
// configured defaults. Empty fields keep the default.
func WithModelOverride(cfg llm.ModelConfig) RunOption {
	return func(s *runSettings) {
		if cfg.APIKey != "" {
			s.model.APIKey = cfg.APIKey
		}
		if cfg.Model != "" {
			s.model.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			s.model.BaseURL = cfg.BaseURL
		}
		if cfg.Temperature != 0 {
			s.model.Temperature = cfg.Temperature
		}
	}
}

// WithThreshold sets the screening threshold for this invocation.
func WithThreshold(threshold int) RunOption {
	return func(s *runSettings) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithTenant attributes the invocation's audit entry to a tenant.
func WithTenant(tenantID string) RunOption {
	return func(s *runSettings) {
		s.tenantID = tenantID
	}
}

// Run selects the graph for task, executes it over initial and returns the
// merged final state. Only configuration errors (unknown task, missing
// credential) are returned; every provider or parse failure is already
// absorbed into fallback fields of the returned state.
func (c *Controller) Run(ctx context.Context, task string, initial State, opts ...RunOption) (State, error) {
	settings := runSettings{
		model:     c.defaults,
		threshold: c.defaultThreshold,
	}
	if c.taskModel != nil {
		if name := c.taskModel(task); name != "" {
			settings.model.Model = name
		}
	}
	for _, opt := range opts {
		opt(&settings)
	}

	chat, err := c.chatFactory(settings.model)
	if err != nil {
		return nil, err
	}

	env := &stageEnv{
		chat:      chat,
		threshold: settings.threshold,
		fetcher:   c.fetcher,
	}

	graph, err := c.graphFor(task, env)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	final, err := graph.Execute(ctx, initial)
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("task", task).
		Dur("took", time.Since(start)).
		Msg("pipeline run complete")

	c.recordActivity(ctx, task, settings.tenantID, initial, final)
	return final, nil
}

func (c *Controller) graphFor(task string, env *stageEnv) (*Graph, error) {
	switch task {
	case constants.TaskScore:
		return buildScoreGraph(env), nil
	case constants.TaskSkillGap:
		return buildSkillGapGraph(env), nil
	case constants.TaskScreen:
		return buildScreenGraph(env), nil
	case constants.TaskGenerate:
		return buildGenerateGraph(env), nil
	case constants.TaskLinkedInToResume:
		return buildLinkedInGraph(env), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
}

// rateLimited wraps the chat client in a QPM limiter when one is configured
// for the resolved model name.
func (c *Controller) rateLimited(chat model.ToolCallingChatModel, cfg llm.ModelConfig) model.ToolCallingChatModel {
	resolved := cfg.Resolved()
	if len(c.qpmLimits) == 0 {
		return chat
	}
	if _, ok := c.qpmLimits[resolved.Model]; !ok {
		return chat
	}
	return ratelimit.NewLimitedChatModel(chat, resolved.Model, c.qpmLimits, 0, 3, time.Second)
}

// recordActivity appends the audit entry. Best-effort only.
func (c *Controller) recordActivity(ctx context.Context, task, tenantID string, initial, final State) {
	if c.activity == nil {
		return
	}

	entry := ActivityEntry{
		TenantID: tenantID,
		Type:     task,
		Subject:  activitySubject(task, initial),
	}
	if score, ok := final["score"].(OverallScore); ok {
		entry.Score = score.Overall
	}
	if quality, ok := final["score"].(QualityScore); ok {
		entry.Score = quality.Overall
	}
	if decision, ok := final["decision"].(Decision); ok {
		if decision.Selected {
			entry.Decision = "selected"
		} else {
			entry.Decision = "rejected"
		}
	}

	if err := c.activity.RecordActivity(ctx, entry); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("task", task).Msg("failed to record activity")
	}
}

func activitySubject(task string, initial State) string {
	var subject string
	switch task {
	case constants.TaskGenerate:
		subject = initial.String("profile_description")
	case constants.TaskLinkedInToResume:
		subject = initial.String("linkedin_url")
	default:
		subject = initial.String("resume_text")
	}
	return tracing.TruncateString(subject, tracing.MaxDocumentLength)
}
