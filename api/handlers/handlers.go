package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/internal/service/comparison"
	"github.com/wenhao0221/contract-compare/internal/service/document"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/worker"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handlers struct {
	Document   *DocumentHandler
	Comparison *ComparisonHandler
	Task       *TaskHandler
}

func NewHandlers(
	documentService *document.Service,
	comparisonService *comparison.Service,
	q *queue.Queue,
	dispatcher *worker.Dispatcher,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document:   NewDocumentHandler(documentService, logger),
		Comparison: NewComparisonHandler(comparisonService, logger),
		Task:       NewTaskHandler(q, dispatcher, logger),
	}
}

// HealthCheck 健康检查
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// userID 取请求方标识，没带时用默认单用户标识
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// statusFor 把领域错误映射到 HTTP 状态码
func statusFor(err error) int {
	var inUse *document.InUseError
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicate), errors.As(err, &inUse):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondBadRequest 请求本身不合法（表单、JSON 绑定失败）时用，
// 不走领域错误映射
func respondBadRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func respondError(c *gin.Context, log logger.Logger, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(message, logger.Error(err))
	}
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(status, resp)
}
