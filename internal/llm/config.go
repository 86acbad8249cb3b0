package llm

import (
	"errors"
	"os"
	"strings"

	"resume-agent-go/internal/constants"
)

// ErrMissingAPIKey is returned when neither the caller nor the environment
// supplies a credential. It is the one error that is never converted to
// fallback output: without a key there is no provider to fall back to.
var ErrMissingAPIKey = errors.New("llm: no API key configured and " + constants.APIKeyEnvVar + " is not set")

// ModelConfig carries everything needed for one provider client. Zero values
// mean "use the default": model gpt-4o-mini, OpenRouter base URL, API key
// from the environment.
type ModelConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string
}

// Resolved returns a copy with all defaults filled in. The API key may still
// be empty; constructors turn that into ErrMissingAPIKey.
func (c ModelConfig) Resolved() ModelConfig {
	out := c
	if strings.TrimSpace(out.APIKey) == "" {
		out.APIKey = os.Getenv(constants.APIKeyEnvVar)
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = constants.DefaultChatModel
	}
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = constants.DefaultBaseURL
	}
	out.BaseURL = strings.TrimSuffix(out.BaseURL, "/")
	return out
}

// ResolvedEmbedding is Resolved with the embedding model default instead of
// the chat default.
func (c ModelConfig) ResolvedEmbedding() ModelConfig {
	out := c
	if strings.TrimSpace(out.Model) == "" {
		out.Model = constants.DefaultEmbeddingModel
	}
	return out.Resolved()
}
