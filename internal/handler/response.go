package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ontograph/internal/engine"
	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

// Response 统一响应格式
type Response struct {
	Code       int                `json:"code"`
	Message    string             `json:"message"`
	Data       any                `json:"data,omitempty"`
	Violations []engine.Violation `json:"violations,omitempty"`
	Timestamp  string             `json:"timestamp"`
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Fail 按错误类别映射 HTTP 状态码
func Fail(c *gin.Context, err error) {
	var (
		notFound   *graph.NotFoundError
		cycleErr   *graph.CycleError
		constraint *engine.ConstraintError
		validation *engine.ValidationError
		datatype   *ontology.DatatypeError
		schemaErr  *ontology.SchemaError
		adapterErr *session.AdapterError
	)
	switch {
	case errors.As(err, &notFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.As(err, &cycleErr), errors.As(err, &constraint):
		Error(c, http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, Response{
			Code:       http.StatusUnprocessableEntity,
			Message:    "validation failed",
			Violations: validation.Violations,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	case errors.As(err, &datatype), errors.As(err, &schemaErr):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &adapterErr):
		Error(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, session.ErrCommitting):
		Error(c, http.StatusConflict, err.Error())
	default:
		Error(c, http.StatusBadRequest, err.Error())
	}
}
