package constants

import "time"

// Pipeline task names. The controller only accepts these.
const (
	TaskScore            = "score"
	TaskSkillGap         = "skill_gap"
	TaskScreen           = "screen"
	TaskGenerate         = "generate"
	TaskLinkedInToResume = "linkedin_to_resume"
)

// Model defaults.
const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	APIKeyEnvVar          = "OPEN_ROUTER_KEY"

	// ProviderTimeout bounds every completion/embedding network call.
	ProviderTimeout = 15 * time.Second
)

// Retrieval defaults.
const (
	DefaultChunkWindow  = 1000
	DefaultChunkOverlap = 200
	DefaultVectorDims   = 1536
	DefaultSearchLimit  = 10
)

// DefaultScreeningThreshold is used when a screening request carries no
// explicit threshold. Expected range 0-100, not hard-validated.
const DefaultScreeningThreshold = 75

// Messaging topology.
const (
	DocumentExchange     = "document.events"
	DocumentIndexQueue   = "document.index"
	DocumentIndexRoutKey = "document.uploaded"
)
