package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/tracing"
)

var chatTracer = otel.Tracer("resume-agent-go/internal/llm")

// --- OpenAI-compatible wire structures ---

type openAIToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"` // always "function"
	Function openAIToolFunction `json:"function"`
}

type openAIChatRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Tools       []openAITool      `json:"tools,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatMessage struct {
	Role      string           `json:"role"`
	Content   *string          `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Error   *openAIError       `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// ChatModel talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default). It implements eino's model interfaces.
type ChatModel struct {
	apiKey      string
	modelName   string
	baseURL     string
	temperature float64
	httpClient  *http.Client
	boundTools  []openAITool
}

// NewChatModel builds a client for cfg. A missing credential fails
// immediately with ErrMissingAPIKey.
func NewChatModel(cfg ModelConfig) (*ChatModel, error) {
	resolved := cfg.Resolved()
	if resolved.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &ChatModel{
		apiKey:      resolved.APIKey,
		modelName:   resolved.Model,
		baseURL:     resolved.BaseURL,
		temperature: resolved.Temperature,
		httpClient:  &http.Client{Timeout: constants.ProviderTimeout},
	}, nil
}

// Generate performs one blocking completion call. Cancellation of ctx
// cancels the in-flight HTTP request.
func (m *ChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	commonOpts := model.GetCommonOptions(&model.Options{}, options...)

	effectiveModel := m.modelName
	if commonOpts.Model != nil && *commonOpts.Model != "" {
		effectiveModel = *commonOpts.Model
	}
	// An explicit per-call temperature is always forwarded, including 0.
	var temperature *float64
	if commonOpts.Temperature != nil {
		v := float64(*commonOpts.Temperature)
		temperature = &v
	} else if m.temperature > 0 {
		v := m.temperature
		temperature = &v
	}

	ctx, span := chatTracer.Start(ctx, "llm.chat.generate", trace.WithAttributes(
		attribute.String("llm.model", effectiveModel),
		attribute.Int("llm.message_count", len(messages)),
	))
	defer span.End()

	reqPayload := openAIChatRequest{
		Model:       effectiveModel,
		Messages:    messages,
		Temperature: temperature,
	}
	if commonOpts.MaxTokens != nil {
		reqPayload.MaxTokens = commonOpts.MaxTokens
	}
	if len(m.boundTools) > 0 {
		reqPayload.Tools = m.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		err = fmt.Errorf("chat completion failed, status %s: %s", httpResp.Status, tracing.TruncateString(string(bodyBytes), tracing.DefaultMaxLength))
		tracing.RecordHTTPError(span, err, httpResp.StatusCode)
		return nil, err
	}

	var apiResp openAIChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		err = fmt.Errorf("provider error: %s", apiResp.Error.Message)
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		err = fmt.Errorf("chat completion returned no choices")
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, err
	}

	apiMessage := apiResp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}
	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	logger.Ctx(ctx).Debug().
		Str("model", effectiveModel).
		Int("response_chars", len(content)).
		Msg("chat completion done")

	return result, nil
}

// Stream is not supported by this client; every pipeline stage consumes a
// whole completion.
func (m *ChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("llm: streaming is not supported by this client")
}

// BindTools registers tools on the client in the wire format the provider
// expects. Parameter schemas come from eino's ToolInfo where available.
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	m.boundTools = make([]openAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		params := json.RawMessage(`{"type":"object","properties":{}}`)
		if toolInfo.ParamsOneOf != nil {
			if openAPI, err := toolInfo.ParamsOneOf.ToOpenAPIV3(); err == nil && openAPI != nil {
				if raw, err := json.Marshal(openAPI); err == nil {
					params = raw
				}
			}
		}
		m.boundTools = append(m.boundTools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  params,
			},
		})
	}
	return nil
}

// WithTools returns a copy of the client with tools bound, satisfying
// model.ToolCallingChatModel.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	clone.boundTools = nil
	if err := clone.BindTools(tools); err != nil {
		return nil, err
	}
	return &clone, nil
}

var _ model.ChatModel = (*ChatModel)(nil)
var _ model.ToolCallingChatModel = (*ChatModel)(nil)
