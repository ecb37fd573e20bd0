package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vmphat/bandlab/internal/controller"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/service"
)

type PromptController struct {
	promptService service.PromptService
}

func NewPromptController(promptService service.PromptService) *PromptController {
	return &PromptController{promptService: promptService}
}

// CreatePrompt godoc
// @Summary (Admin) Create a practice prompt
// @Tags Admin - Prompts
// @Accept json
// @Produce json
// @Param prompt body dto.CreatePromptRequest true "Prompt definition"
// @Success 201 {object} dto.PromptDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/prompts [post]
func (c *PromptController) CreatePrompt(ctx *gin.Context) {
	var req dto.CreatePromptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}
	resp, err := c.promptService.CreatePrompt(req)
	if err != nil {
		controller.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}
