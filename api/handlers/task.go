package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/worker"
)

// TaskHandler 队列任务的查询、取消和手动触发。dispatcher 可以
// 为 nil（单进程部署没有 asynq worker），这时触发走同步 drain。
type TaskHandler struct {
	queue      *queue.Queue
	dispatcher *worker.Dispatcher
	logger     logger.Logger
}

func NewTaskHandler(q *queue.Queue, dispatcher *worker.Dispatcher, logger logger.Logger) *TaskHandler {
	return &TaskHandler{
		queue:      q,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GetStatus 查任务状态。优先读 redis 快照，未命中回源数据库。
func (h *TaskHandler) GetStatus(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	if h.dispatcher != nil {
		if snap, err := h.dispatcher.GetSnapshot(c.Request.Context(), id); err == nil && snap != nil {
			c.JSON(http.StatusOK, snap)
			return
		}
	}

	task, err := h.queue.GetTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// List 该用户名下的全部任务
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.queue.FindByUser(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}

// ListPending 到期待处理任务，权威顺序
func (h *TaskHandler) ListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tasks, err := h.queue.FindPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "Failed to list pending tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}

// Cancel 取消一条还没被认领的任务
func (h *TaskHandler) Cancel(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	if err := h.queue.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task cancelled"})
}

// TriggerDrain 手动触发一轮队列消费。有 worker 时发异步信号，
// 没有时在请求内同步清队列。
func (h *TaskHandler) TriggerDrain(c *gin.Context) {
	if h.dispatcher != nil {
		if err := h.dispatcher.NotifyDrain(c.Request.Context()); err != nil {
			respondError(c, h.logger, "Failed to signal drain", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Drain signalled"})
		return
	}

	processed, err := h.queue.Drain(c.Request.Context(), 0)
	if err != nil {
		respondError(c, h.logger, "Drain failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func (h *TaskHandler) taskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, h.logger, "Invalid task id",
			models.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
