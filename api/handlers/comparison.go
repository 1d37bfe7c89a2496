package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/service/comparison"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

type ComparisonHandler struct {
	service *comparison.Service
	logger  logger.Logger
}

func NewComparisonHandler(service *comparison.Service, logger logger.Logger) *ComparisonHandler {
	return &ComparisonHandler{
		service: service,
		logger:  logger,
	}
}

// Compare 发起一次比对。同一对文档同一方法的已完成结果直接复用。
func (h *ComparisonHandler) Compare(c *gin.Context) {
	var req struct {
		Document1ID uint   `json:"document1_id" binding:"required"`
		Document2ID uint   `json:"document2_id" binding:"required"`
		Method      string `json:"method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}

	cmp, err := h.service.Compare(c.Request.Context(), &comparison.Request{
		UserID:      userID(c),
		Document1ID: req.Document1ID,
		Document2ID: req.Document2ID,
		Method:      req.Method,
	})
	if err != nil {
		respondError(c, h.logger, "Comparison failed", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// Get 取一条比对记录
func (h *ComparisonHandler) Get(c *gin.Context) {
	id, ok := h.comparisonID(c)
	if !ok {
		return
	}

	cmp, err := h.service.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get comparison", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// List 该用户的全部比对记录
func (h *ComparisonHandler) List(c *gin.Context) {
	comparisons, err := h.service.List(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list comparisons", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comparisons": comparisons,
		"total":       len(comparisons),
	})
}

// Delete 删除一条比对记录
func (h *ComparisonHandler) Delete(c *gin.Context) {
	id, ok := h.comparisonID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, "Failed to delete comparison", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comparison deleted"})
}

func (h *ComparisonHandler) comparisonID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, h.logger, "Invalid comparison id",
			models.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
