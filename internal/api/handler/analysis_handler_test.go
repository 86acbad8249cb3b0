package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/api/handler"
	"resume-agent-go/internal/api/router"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/pipeline"
)

// stubRunner scripts the pipeline controller.
type stubRunner struct {
	Final pipeline.State
	Err   error

	ReceivedTask    string
	ReceivedInitial pipeline.State
	ReceivedOptions int
}

func (s *stubRunner) Run(ctx context.Context, task string, initial pipeline.State, opts ...pipeline.RunOption) (pipeline.State, error) {
	s.ReceivedTask = task
	s.ReceivedInitial = initial
	s.ReceivedOptions = len(opts)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Final, nil
}

func newTestEngine(runner *stubRunner) *server.Hertz {
	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	router.RegisterRoutes(h,
		handler.NewAnalysisHandler(runner),
		handler.NewDocumentHandler(nil, nil),
		handler.NewSearchHandler(nil),
		handler.NewActivityHandler(nil),
	)
	return h
}

func postJSON(t *testing.T, h *server.Hertz, path string, body any, headers ...ut.Header) *ut.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(h.Engine, "POST", path,
		&ut.Body{Body: bytes.NewBuffer(raw), Len: len(raw)},
		headers...,
	)
}

func tenantHeader(tenant string) ut.Header {
	return ut.Header{Key: handler.TenantHeader, Value: tenant}
}

func TestAnalyzeQuality(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{
		"score": pipeline.QualityScore{Overall: 88, Clarity: 90, Skills: 85, Format: 88},
	}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/quality",
		map[string]string{"resume_text": "Go engineer, 5 years"},
		tenantHeader("tenant-a"),
	)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, constants.TaskScore, runner.ReceivedTask)
	assert.Equal(t, "Go engineer, 5 years", runner.ReceivedInitial.String("resume_text"))

	var body struct {
		Score pipeline.QualityScore `json:"score"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 88, body.Score.Overall)
}

func TestAnalyzeQualityRequiresTenant(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/quality",
		map[string]string{"resume_text": "text"},
	)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, runner.ReceivedTask, "handler must not run without a tenant")
}

func TestAnalyzeQualityRejectsEmptyResume(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/quality",
		map[string]string{"resume_text": "   "},
		tenantHeader("tenant-a"),
	)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAnalyzeQualityMissingAPIKey(t *testing.T) {
	runner := &stubRunner{Err: llm.ErrMissingAPIKey}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/quality",
		map[string]string{"resume_text": "text"},
		tenantHeader("tenant-a"),
	)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAnalyzeGap(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{
		"resume_skills": []string{"go"},
		"jd_skills":     []string{"go", "kubernetes"},
		"gaps": pipeline.SkillGapResult{
			Matched:     []string{"go"},
			Missing:     []string{"kubernetes"},
			Recommended: []string{"kubernetes"},
		},
	}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/gap",
		map[string]string{"resume_text": "resume", "job_description": "jd"},
		tenantHeader("tenant-a"),
	)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, constants.TaskSkillGap, runner.ReceivedTask)
	assert.Equal(t, "jd", runner.ReceivedInitial.String("jd_text"))

	var body struct {
		Gaps pipeline.SkillGapResult `json:"gaps"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, []string{"kubernetes"}, body.Gaps.Missing)
}

func TestAnalyzeScreen(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{
		"decision": pipeline.Decision{Selected: true, Reason: "meets the bar"},
		"score":    pipeline.OverallScore{Overall: 82},
	}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/screen",
		map[string]any{"resume_text": "resume", "job_description": "jd", "threshold": 80},
		tenantHeader("tenant-a"),
	)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, constants.TaskScreen, runner.ReceivedTask)
	// Tenant option plus the explicit threshold.
	assert.Equal(t, 2, runner.ReceivedOptions)

	var body struct {
		Decision pipeline.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Decision.Selected)
}

func TestGenerateResume(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{
		"resume_json": map[string]any{"summary": "Seasoned Go engineer"},
	}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/generate/resume",
		map[string]string{"profile_description": "ten years of backend work"},
		tenantHeader("tenant-a"),
	)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, constants.TaskGenerate, runner.ReceivedTask)
	assert.Contains(t, resp.Body.String(), "Seasoned Go engineer")
}

func TestLinkedInResume(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{
		"parsed_profile": map[string]any{"name": "Ada"},
		"resume":         map[string]any{"summary": "profile-based resume"},
	}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/linkedin/resume",
		map[string]string{"linkedin_url": "https://www.linkedin.com/in/ada"},
		tenantHeader("tenant-a"),
	)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, constants.TaskLinkedInToResume, runner.ReceivedTask)
	assert.Equal(t, "https://www.linkedin.com/in/ada", runner.ReceivedInitial.String("linkedin_url"))
}

func TestModelOverrideHeadersAddOption(t *testing.T) {
	runner := &stubRunner{Final: pipeline.State{}}
	h := newTestEngine(runner)

	resp := postJSON(t, h, "/api/v1/analyze/quality",
		map[string]string{"resume_text": "text"},
		tenantHeader("tenant-a"),
		ut.Header{Key: handler.ModelNameHeader, Value: "gpt-4o"},
	)
	require.Equal(t, http.StatusOK, resp.Code)
	// Tenant option plus the model override.
	assert.Equal(t, 2, runner.ReceivedOptions)
}

func TestHealthNeedsNoTenant(t *testing.T) {
	h := newTestEngine(&stubRunner{})
	resp := ut.PerformRequest(h.Engine, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestUnconfiguredStorageEndpoints(t *testing.T) {
	h := newTestEngine(&stubRunner{})

	resp := postJSON(t, h, "/api/v1/search",
		map[string]string{"query": "go"}, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/activity", nil, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = ut.PerformRequest(h.Engine, "POST", "/api/v1/documents", nil, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/documents/doc-1", nil, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/documents/doc-1/text", nil, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = ut.PerformRequest(h.Engine, "DELETE", "/api/v1/documents/doc-1", nil, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
