package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/tracing"
)

type openAIEmbeddingRequest struct {
	Input      any    `json:"input"` // string or []string
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Data   []openAIEmbeddingData `json:"data"`
	Model  string                `json:"model"`
	Error  *openAIError          `json:"error,omitempty"`
}

// Embedder turns text into fixed-length vectors through an OpenAI-compatible
// embeddings endpoint. Implements eino embedding.Embedder.
type Embedder struct {
	apiKey     string
	modelName  string
	baseURL    string
	dimensions int
	httpClient *http.Client
}

// NewEmbedder builds an embedding client for cfg. dimensions <= 0 falls back
// to the default vector size.
func NewEmbedder(cfg ModelConfig, dimensions int) (*Embedder, error) {
	resolved := cfg.ResolvedEmbedding()
	if resolved.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if dimensions <= 0 {
		dimensions = constants.DefaultVectorDims
	}

	return &Embedder{
		apiKey:     resolved.APIKey,
		modelName:  resolved.Model,
		baseURL:    resolved.BaseURL,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: constants.ProviderTimeout},
	}, nil
}

// Dimensions reports the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// EmbedStrings embeds texts in one request, preserving input order.
func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)

	effectiveModel := e.modelName
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	ctx, span := chatTracer.Start(ctx, "llm.embed", trace.WithAttributes(
		attribute.String("llm.model", effectiveModel),
		attribute.Int("llm.text_count", len(texts)),
	))
	defer span.End()

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := openAIEmbeddingRequest{
		Input:      input,
		Model:      effectiveModel,
		Dimensions: e.dimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError openAIError
		err = fmt.Errorf("embedding failed, status %d: %s", resp.StatusCode, tracing.TruncateString(string(body), tracing.DefaultMaxLength))
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			err = fmt.Errorf("embedding failed, status %d: %s", resp.StatusCode, apiError.Message)
		}
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return nil, err
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		err = fmt.Errorf("provider error: %s", parsed.Error.Message)
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		err = fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, err
	}

	// The API is allowed to reorder entries; Index restores input order.
	out := make([][]float64, len(texts))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(out) {
			err = fmt.Errorf("embedding entry index %d out of range", entry.Index)
			tracing.RecordError(span, err, tracing.ErrorTypeProvider)
			return nil, err
		}
		out[entry.Index] = entry.Embedding
	}

	return out, nil
}

var _ embedding.Embedder = (*Embedder)(nil)
