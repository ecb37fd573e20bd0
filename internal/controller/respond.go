// Package controller holds helpers shared by the learner and admin HTTP
// controllers.
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/service"
)

// RespondError translates the service error taxonomy into HTTP statuses.
func RespondError(ctx *gin.Context, err error) {
	var notFound *service.NotFoundError
	var conflict *service.ConflictError
	var invalidState *service.InvalidStateError
	var validation *service.ValidationError
	var timeout *service.TimeoutError
	var transient *service.TransientError

	switch {
	case errors.As(err, &notFound):
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: err.Error()})
	case errors.As(err, &conflict):
		ctx.JSON(http.StatusConflict, dto.ErrorResponse{Message: err.Error()})
	case errors.As(err, &invalidState):
		ctx.JSON(http.StatusConflict, dto.ErrorResponse{Message: err.Error()})
	case errors.As(err, &validation):
		ctx.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Message: err.Error()})
	case errors.As(err, &timeout), errors.As(err, &transient):
		ctx.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "scoring service unavailable", Details: []string{err.Error()}})
	default:
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "internal error", Details: []string{err.Error()}})
	}
}
