package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"resume-agent-go/internal/tracing"
)

// ParseFailure marks model output that was not valid JSON after
// fence-stripping. It carries the raw text for diagnostics and is returned
// as a value, never panicked or propagated as a pipeline error: "model did
// not follow the format" is handled differently from "model is unreachable".
type ParseFailure struct {
	Raw string
	Err error
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("invalid structured output: %v (raw: %s)", f.Err, tracing.TruncateString(f.Raw, tracing.DefaultMaxLength))
}

func (f *ParseFailure) Unwrap() error {
	return f.Err
}

// StripCodeFence removes an optional ``` wrapper from model output. The
// first line (which may carry a language tag) is dropped, and a trailing
// fence line is dropped when present. Text without a fence is only trimmed.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	// Drop the opening fence line.
	lines = lines[1:]
	// Drop the closing fence line when the model produced one.
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractJSON strips an optional code fence from raw and validates that the
// remainder is a JSON document. On failure the ParseFailure return is
// non-nil and the message is nil.
func ExtractJSON(raw string) (json.RawMessage, *ParseFailure) {
	cleaned := StripCodeFence(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, &ParseFailure{Raw: raw, Err: fmt.Errorf("not a JSON document")}
	}
	return json.RawMessage(cleaned), nil
}

// DecodeJSON strips an optional code fence and unmarshals the remainder
// into v.
func DecodeJSON(raw string, v any) *ParseFailure {
	cleaned := StripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseFailure{Raw: raw, Err: err}
	}
	return nil
}
