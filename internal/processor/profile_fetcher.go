package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/tracing"
)

var fetcherTracer = otel.Tracer("resume-agent-go/processor/fetcher")

// maxProfileBodyBytes caps how much of a profile page is read.
const maxProfileBodyBytes = 2 << 20

// HTTPProfileFetcher fetches a public profile page and reduces it to plain
// text for the profile parsing stage.
type HTTPProfileFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProfileFetcher builds a fetcher with a bounded HTTP client.
func NewHTTPProfileFetcher() *HTTPProfileFetcher {
	return &HTTPProfileFetcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: "Mozilla/5.0 (compatible; resume-agent/1.0)",
	}
}

// FetchProfile downloads the page and strips its markup. The caller treats
// any error as a fallback cause, so errors here are plain values.
func (f *HTTPProfileFetcher) FetchProfile(ctx context.Context, url string) (string, error) {
	ctx, span := fetcherTracer.Start(ctx, "HTTPProfileFetcher.FetchProfile",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("profile.url", tracing.TruncateString(url, tracing.DefaultMaxLength)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return "", fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("profile fetch returned status %d", resp.StatusCode)
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBodyBytes))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return "", fmt.Errorf("read profile body: %w", err)
	}

	text := stripMarkup(string(body))
	span.SetAttributes(attribute.Int("profile.text_length", len(text)))
	span.SetStatus(codes.Ok, "")
	return text, nil
}

// stripMarkup removes tags, scripts and styles, collapsing the remainder
// into whitespace-separated text. Good enough for prompting; the parsing
// stage tolerates residual noise.
func stripMarkup(page string) string {
	var out strings.Builder
	out.Grow(len(page) / 2)

	inTag := false
	skipUntil := ""

	for i := 0; i < len(page); i++ {
		if skipUntil != "" {
			if hasFoldPrefix(page[i:], skipUntil) {
				i += len(skipUntil) - 1
				skipUntil = ""
			}
			continue
		}
		switch {
		case hasFoldPrefix(page[i:], "<script"):
			skipUntil = "</script>"
		case hasFoldPrefix(page[i:], "<style"):
			skipUntil = "</style>"
		case page[i] == '<':
			inTag = true
		case page[i] == '>':
			if inTag {
				inTag = false
				out.WriteByte(' ')
			}
		case !inTag:
			out.WriteByte(page[i])
		}
	}

	return strings.Join(strings.Fields(out.String()), " ")
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
