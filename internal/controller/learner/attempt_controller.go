package learner

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/internal/controller"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/service"
)

type AttemptController struct {
	attemptService    service.AttemptService
	promptService     service.PromptService
	aggregatorService service.AggregatorService
}

func NewAttemptController(
	attemptService service.AttemptService,
	promptService service.PromptService,
	aggregatorService service.AggregatorService,
) *AttemptController {
	return &AttemptController{
		attemptService:    attemptService,
		promptService:     promptService,
		aggregatorService: aggregatorService,
	}
}

// GetAllPrompts godoc
// @Summary (Learner) List practice prompts
// @Description List prompts available for practice, optionally filtered by skill.
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param skill query string false "Filter by skill (writing|speaking)"
// @Success 200 {array} dto.PromptDTO
// @Failure 500 {object} dto.ErrorResponse
// @Router /prompts [get]
func (c *AttemptController) GetAllPrompts(ctx *gin.Context) {
	var skill *model.Skill
	if q := ctx.Query("skill"); q != "" {
		s := model.Skill(q)
		skill = &s
	}
	prompts, err := c.promptService.GetAllPrompts(skill)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, prompts)
}

// GetPrompt godoc
// @Summary (Learner) Get a prompt
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param prompt_id path int true "Prompt ID"
// @Success 200 {object} dto.PromptDTO
// @Failure 404 {object} dto.ErrorResponse
// @Router /prompts/{prompt_id} [get]
func (c *AttemptController) GetPrompt(ctx *gin.Context) {
	promptID, ok := pathID(ctx, "prompt_id")
	if !ok {
		return
	}
	prompt, err := c.promptService.GetPrompt(promptID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, prompt)
}

// StartAttempt godoc
// @Summary (Learner) Start a practice attempt
// @Description Creates an in_progress attempt. Fails with 409 when the learner already has an active attempt for the prompt.
// @Tags Learner - Prompts & Attempts
// @Accept json
// @Produce json
// @Param attempt body dto.StartAttemptRequest true "Learner and prompt"
// @Success 201 {object} dto.StartAttemptResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Active attempt already exists"
// @Router /attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	var req dto.StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}
	resp, err := c.attemptService.Start(req)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// UpdateContent godoc
// @Summary (Learner) Auto-save draft content
// @Description Overwrites the draft while the attempt is in_progress. Auto-save is best-effort: failures are logged and reported in the body, never as an error status.
// @Tags Learner - Prompts & Attempts
// @Accept json
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Param content body dto.UpdateContentRequest true "Draft content"
// @Success 200 {object} dto.UpdateContentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /attempts/{attempt_id}/content [put]
func (c *AttemptController) UpdateContent(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "attempt_id")
	if !ok {
		return
	}
	var req dto.UpdateContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}
	if err := c.attemptService.UpdateContent(attemptID, req.Content); err != nil {
		log.Warn().Err(err).Uint("attemptID", attemptID).Msg("Auto-save rejected, swallowing")
		ctx.JSON(http.StatusOK, dto.UpdateContentResponse{Saved: false})
		return
	}
	ctx.JSON(http.StatusOK, dto.UpdateContentResponse{Saved: true})
}

// SubmitAttempt godoc
// @Summary (Learner) Submit an attempt for scoring
// @Description Finalizes the draft, transitions to submitted and enqueues exactly one scoring job.
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 202 {object} dto.SubmitAttemptResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Not in_progress (double submission)"
// @Failure 422 {object} dto.ErrorResponse "Content fails domain constraints"
// @Router /attempts/{attempt_id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "attempt_id")
	if !ok {
		return
	}
	resp, err := c.attemptService.Submit(attemptID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, resp)
}

// RescoreAttempt godoc
// @Summary (Learner) Request a rescore of a failed attempt
// @Description Creates a fresh scoring job and moves the attempt back to submitted. Only valid from failed.
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 202 {object} dto.SubmitAttemptResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /attempts/{attempt_id}/rescore [post]
func (c *AttemptController) RescoreAttempt(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "attempt_id")
	if !ok {
		return
	}
	resp, err := c.attemptService.Rescore(attemptID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, resp)
}

// GetAttempt godoc
// @Summary (Learner) Get attempt status and result
// @Description Full attempt detail including the score once available. This is the endpoint the progress poller watches.
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptDetailDTO
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts/{attempt_id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "attempt_id")
	if !ok {
		return
	}
	resp, err := c.attemptService.GetAttempt(attemptID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetLearnerAttempts godoc
// @Summary (Learner) List a learner's attempts
// @Tags Learner - Prompts & Attempts
// @Produce json
// @Param learner_id path int true "Learner ID"
// @Success 200 {array} dto.AttemptSummaryDTO
// @Failure 400 {object} dto.ErrorResponse
// @Router /learners/{learner_id}/attempts [get]
func (c *AttemptController) GetLearnerAttempts(ctx *gin.Context) {
	learnerID, ok := pathID(ctx, "learner_id")
	if !ok {
		return
	}
	resp, err := c.attemptService.GetLearnerAttempts(learnerID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetBandStats godoc
// @Summary (Learner) Aggregate band statistics
// @Description Average band and distribution per skill. Empty partitions report average 0 with count 0.
// @Tags Learner - Stats
// @Produce json
// @Param learner_id query int false "Restrict stats to one learner"
// @Success 200 {object} dto.BandStatsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /stats/bands [get]
func (c *AttemptController) GetBandStats(ctx *gin.Context) {
	var learnerID *uint
	if q := ctx.Query("learner_id"); q != "" {
		val, err := strconv.ParseUint(q, 10, 32)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid learner ID format in query"})
			return
		}
		id := uint(val)
		learnerID = &id
	}
	resp, err := c.aggregatorService.BandStats(learnerID)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	val, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid " + name + " format"})
		return 0, false
	}
	return uint(val), true
}
