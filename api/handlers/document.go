package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/service/document"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

type DocumentHandler struct {
	service *document.Service
	logger  logger.Logger
}

func NewDocumentHandler(service *document.Service, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

// Upload 上传单个文档
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondBadRequest(c, "Invalid file upload", err)
		return
	}
	defer file.Close()

	isStandard := c.PostForm("is_standard") == "true"

	result, err := h.service.Upload(c.Request.Context(), &document.UploadInput{
		Filename:   header.Filename,
		Size:       header.Size,
		Reader:     file,
		UserID:     userID(c),
		IsStandard: isStandard,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to upload document", err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// UploadBatch 批量上传文档
func (h *DocumentHandler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondBadRequest(c, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		respondBadRequest(c, "No files provided", nil)
		return
	}

	inputs := make([]*document.UploadInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(c, h.logger, fmt.Sprintf("Failed to open %s", fh.Filename), err)
			return
		}
		defer f.Close()
		inputs = append(inputs, &document.UploadInput{
			Filename: fh.Filename,
			Size:     fh.Size,
			Reader:   f,
			UserID:   userID(c),
		})
	}

	results, err := h.service.UploadBatch(c.Request.Context(), inputs)
	if err != nil {
		respondError(c, h.logger, "Batch upload failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Uploaded %d documents", len(results)),
		"results": results,
	})
}

// List 分页列出文档，支持 type 和 search 过滤
func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	result, err := h.service.ListDocuments(c.Request.Context(), userID(c), document.ListOptions{
		Page:     page,
		PageSize: pageSize,
		Type:     c.Query("type"),
		Search:   c.Query("search"),
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list documents", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get 取文档富视图，带下载地址和存储元数据
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	doc, err := h.service.GetEnhanced(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// StreamContent 内部流式下载端点，本地存储后端的下载路径
func (h *DocumentHandler) StreamContent(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	reader, contentType, filename, err := h.service.Stream(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.logger, "Failed to stream document", err)
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("Document stream interrupted",
			logger.Uint("documentId", id),
			logger.Error(err),
		)
	}
}

// Rename 修改展示名
func (h *DocumentHandler) Rename(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}

	if err := h.service.Rename(c.Request.Context(), userID(c), id, req.Name); err != nil {
		respondError(c, h.logger, "Failed to rename document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document renamed"})
}

// SetStandard 切换基准文档标记
func (h *DocumentHandler) SetStandard(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	var req struct {
		IsStandard bool `json:"is_standard"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}

	if err := h.service.SetStandard(c.Request.Context(), userID(c), id, req.IsStandard); err != nil {
		respondError(c, h.logger, "Failed to update standard flag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Standard flag updated"})
}

// Delete 删除文档，被比对引用时返回 409
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.logger, "Failed to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

// ValidateForComparison 检查两份文档是否都准备好比对
func (h *DocumentHandler) ValidateForComparison(c *gin.Context) {
	var req struct {
		Document1ID uint `json:"document1_id" binding:"required"`
		Document2ID uint `json:"document2_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}

	readiness, err := h.service.ValidateForComparison(c.Request.Context(), userID(c), req.Document1ID, req.Document2ID)
	if err != nil {
		respondError(c, h.logger, "Validation failed", err)
		return
	}
	c.JSON(http.StatusOK, readiness)
}

func (h *DocumentHandler) documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, h.logger, "Invalid document id",
			models.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
