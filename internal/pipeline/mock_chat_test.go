package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-agent-go/internal/llm"
)

// mockResponse is one scripted reply of mockChatClient.
type mockResponse struct {
	Content string
	Error   error
}

// mockChatClient replays scripted responses and records every prompt it was
// asked to complete.
type mockChatClient struct {
	Responses     []mockResponse
	ResponseIndex int

	ReceivedMessages []*schema.Message
	ReceivedOptions  [][]model.Option
}

func newMockChatClient(responses ...mockResponse) *mockChatClient {
	return &mockChatClient{
		Responses:        responses,
		ReceivedMessages: make([]*schema.Message, 0),
	}
}

// newMockChatClientFixed always returns the same content or error.
func newMockChatClientFixed(content string, err error) *mockChatClient {
	return &mockChatClient{
		Responses:        []mockResponse{{Content: content, Error: err}},
		ReceivedMessages: make([]*schema.Message, 0),
	}
}

func (m *mockChatClient) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.ReceivedMessages = append(m.ReceivedMessages, input...)
	m.ReceivedOptions = append(m.ReceivedOptions, opts)

	if len(m.Responses) == 0 {
		return nil, errors.New("mock client has no responses configured")
	}

	// A single scripted response repeats; multiple responses are consumed
	// in order.
	idx := m.ResponseIndex
	if idx >= len(m.Responses) {
		if len(m.Responses) == 1 {
			idx = 0
		} else {
			return nil, errors.New("mock client has run out of responses")
		}
	}
	resp := m.Responses[idx]
	m.ResponseIndex++

	if resp.Error != nil {
		return nil, resp.Error
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

func (m *mockChatClient) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not implemented in mockChatClient")
}

func (m *mockChatClient) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func (m *mockChatClient) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

var _ model.ToolCallingChatModel = (*mockChatClient)(nil)

// fakeProfileFetcher returns canned profile text for any URL.
type fakeProfileFetcher struct {
	Profile string
	Err     error

	RequestedURLs []string
}

func (f *fakeProfileFetcher) FetchProfile(ctx context.Context, url string) (string, error) {
	f.RequestedURLs = append(f.RequestedURLs, url)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Profile, nil
}

// capturingActivityLogger stores every entry it is handed.
type capturingActivityLogger struct {
	Entries []ActivityEntry
	Err     error
}

func (l *capturingActivityLogger) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	l.Entries = append(l.Entries, entry)
	return l.Err
}

// newTestController returns a controller whose chat calls hit the given mock
// instead of a real provider.
func newTestController(chat model.ToolCallingChatModel, opts ...ControllerOption) *Controller {
	c := NewController(llm.NewClientCache(), llm.ModelConfig{APIKey: "test-key"}, opts...)
	c.chatFactory = func(cfg llm.ModelConfig) (model.ToolCallingChatModel, error) {
		return chat, nil
	}
	return c
}
