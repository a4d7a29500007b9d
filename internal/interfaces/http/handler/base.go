package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/fleetbill/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.OK(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.Fail(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError converts an error to an HTTP response. Domain errors keep
// their code; storage failures and unknown errors are attached to the gin
// context for reporting and answered without internal detail.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		_ = c.Error(err)
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	statusCode := dto.GetHTTPStatus(domainErr.Code)
	message := domainErr.Message
	if statusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
		message = "Storage operation failed"
	}
	h.Error(c, statusCode, domainErr.Code, message)
}

// BindJSON binds the request body into obj and answers 400 on failure.
// It returns false when the response has already been written.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var validationErrs validator.ValidationErrors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		middleware.AbortBodyTooLarge(c)
	case errors.As(err, &validationErrs):
		middleware.HandleValidationError(c, err)
	case errors.Is(err, io.EOF):
		h.BadRequest(c, "Request body is required")
	default:
		h.BadRequest(c, "Invalid request body: "+err.Error())
	}
	return false
}

// ParseUUIDParam parses the named path parameter as a UUID and answers 400
// when it is malformed
func (h *BaseHandler) ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
