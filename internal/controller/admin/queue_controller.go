package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vmphat/bandlab/internal/controller"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/service"
)

type QueueController struct {
	queueService   service.QueueService
	attemptService service.AttemptService
}

func NewQueueController(queueService service.QueueService, attemptService service.AttemptService) *QueueController {
	return &QueueController{queueService: queueService, attemptService: attemptService}
}

// ProcessJobs godoc
// @Summary (Admin) Drain the pending scoring jobs now
// @Description Claims and executes eligible jobs until none remain. The background worker runs the same batch on a schedule; this endpoint exists for manual nudges.
// @Tags Admin - Scoring Queue
// @Produce json
// @Success 200 {object} dto.ProcessReport
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/jobs/process [post]
func (c *QueueController) ProcessJobs(ctx *gin.Context) {
	report, err := c.queueService.ProcessPending(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// Reconcile godoc
// @Summary (Admin) Re-enqueue orphaned submitted attempts
// @Description Finds attempts stuck in submitted with no live job past the orphan threshold and gives each a fresh job.
// @Tags Admin - Scoring Queue
// @Produce json
// @Success 200 {object} dto.ReconcileReport
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/jobs/reconcile [post]
func (c *QueueController) Reconcile(ctx *gin.Context) {
	report, err := c.attemptService.ReconcileOrphans()
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// ListJobs godoc
// @Summary (Admin) List recent scoring jobs
// @Tags Admin - Scoring Queue
// @Produce json
// @Param limit query int false "Max jobs to return (default 50)"
// @Success 200 {array} dto.JobDTO
// @Failure 400 {object} dto.ErrorResponse
// @Router /admin/jobs [get]
func (c *QueueController) ListJobs(ctx *gin.Context) {
	limit := 50
	if q := ctx.Query("limit"); q != "" {
		val, err := strconv.Atoi(q)
		if err != nil || val <= 0 {
			ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid limit format"})
			return
		}
		limit = val
	}
	jobs, err := c.queueService.ListRecentJobs(limit)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, jobs)
}

// QueueStats godoc
// @Summary (Admin) Scoring queue counts by status
// @Tags Admin - Scoring Queue
// @Produce json
// @Success 200 {object} dto.QueueStatsDTO
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/jobs/stats [get]
func (c *QueueController) QueueStats(ctx *gin.Context) {
	stats, err := c.queueService.QueueStats()
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// MarkTeacherEvaluated godoc
// @Summary (Admin) Record a teacher review of a scored attempt
// @Description Moves a scored attempt to evaluated_by_teacher. Terminal.
// @Tags Admin - Scoring Queue
// @Produce json
// @Param attempt_id path int true "Attempt ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /admin/attempts/{attempt_id}/teacher-evaluation [post]
func (c *QueueController) MarkTeacherEvaluated(ctx *gin.Context) {
	val, err := strconv.ParseUint(ctx.Param("attempt_id"), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid attempt_id format"})
		return
	}
	if err := c.attemptService.MarkTeacherEvaluated(uint(val)); err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "evaluated_by_teacher"})
}
