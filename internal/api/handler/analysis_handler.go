package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/pipeline"
)

// PipelineRunner is the slice of the pipeline controller these endpoints
// need.
type PipelineRunner interface {
	Run(ctx context.Context, task string, initial pipeline.State, opts ...pipeline.RunOption) (pipeline.State, error)
}

// AnalysisHandler exposes the pipeline tasks over HTTP. Provider and parse
// failures never surface as HTTP errors: the pipeline absorbs them into
// degraded payloads, so these endpoints answer 200 whenever the task itself
// is runnable.
type AnalysisHandler struct {
	pipelines PipelineRunner
}

// NewAnalysisHandler wires the pipeline controller.
func NewAnalysisHandler(pipelines PipelineRunner) *AnalysisHandler {
	return &AnalysisHandler{pipelines: pipelines}
}

type qualityRequest struct {
	ResumeText string `json:"resume_text"`
}

// AnalyzeQuality runs the resume quality scorer.
func (h *AnalysisHandler) AnalyzeQuality(ctx context.Context, c *app.RequestContext) {
	var req qualityRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ResumeText) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "resume_text is required"})
		return
	}

	final, err := h.pipelines.Run(ctx, constants.TaskScore,
		pipeline.State{"resume_text": req.ResumeText}, runOptionsFrom(c)...)
	if err != nil {
		c.JSON(statusForRunError(err), errorResponse{Error: err.Error()})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{"score": final["score"]})
}

type gapRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

// AnalyzeGap compares resume skills against the job description.
func (h *AnalysisHandler) AnalyzeGap(ctx context.Context, c *app.RequestContext) {
	var req gapRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ResumeText) == "" || strings.TrimSpace(req.JobDescription) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "resume_text and job_description are required"})
		return
	}

	final, err := h.pipelines.Run(ctx, constants.TaskSkillGap, pipeline.State{
		"resume_text": req.ResumeText,
		"jd_text":     req.JobDescription,
	}, runOptionsFrom(c)...)
	if err != nil {
		c.JSON(statusForRunError(err), errorResponse{Error: err.Error()})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"resume_skills": final["resume_skills"],
		"jd_skills":     final["jd_skills"],
		"gaps":          final["gaps"],
	})
}

type screenRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	Threshold      int    `json:"threshold"`
}

// AnalyzeScreen produces a selected/rejected verdict. The threshold is
// optional; zero keeps the configured default.
func (h *AnalysisHandler) AnalyzeScreen(ctx context.Context, c *app.RequestContext) {
	var req screenRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ResumeText) == "" || strings.TrimSpace(req.JobDescription) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "resume_text and job_description are required"})
		return
	}

	opts := runOptionsFrom(c)
	if req.Threshold > 0 {
		opts = append(opts, pipeline.WithThreshold(req.Threshold))
	}

	final, err := h.pipelines.Run(ctx, constants.TaskScreen, pipeline.State{
		"resume_text": req.ResumeText,
		"jd_text":     req.JobDescription,
	}, opts...)
	if err != nil {
		c.JSON(statusForRunError(err), errorResponse{Error: err.Error()})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"decision": final["decision"],
		"score":    final["score"],
	})
}

type generateRequest struct {
	ProfileDescription string `json:"profile_description"`
}

// GenerateResume writes a structured resume from a free-form profile
// description.
func (h *AnalysisHandler) GenerateResume(ctx context.Context, c *app.RequestContext) {
	var req generateRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ProfileDescription) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "profile_description is required"})
		return
	}

	final, err := h.pipelines.Run(ctx, constants.TaskGenerate,
		pipeline.State{"profile_description": req.ProfileDescription}, runOptionsFrom(c)...)
	if err != nil {
		c.JSON(statusForRunError(err), errorResponse{Error: err.Error()})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{"resume": final["resume_json"]})
}

type linkedinRequest struct {
	LinkedInURL string `json:"linkedin_url"`
}

// LinkedInResume converts a public LinkedIn profile into a structured
// resume.
func (h *AnalysisHandler) LinkedInResume(ctx context.Context, c *app.RequestContext) {
	var req linkedinRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.LinkedInURL) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "linkedin_url is required"})
		return
	}

	final, err := h.pipelines.Run(ctx, constants.TaskLinkedInToResume,
		pipeline.State{"linkedin_url": req.LinkedInURL}, runOptionsFrom(c)...)
	if err != nil {
		c.JSON(statusForRunError(err), errorResponse{Error: err.Error()})
		return
	}

	logger.Ctx(ctx).Debug().Str("linkedin_url", req.LinkedInURL).Msg("linkedin conversion finished")
	c.JSON(consts.StatusOK, map[string]any{
		"parsed_profile": final["parsed_profile"],
		"resume":         final["resume"],
	})
}
