package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ontograph/internal/service"
)

// SyncHandler 会话同步处理器
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler 创建会话同步处理器
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Commit 提交待提交日志
func (h *SyncHandler) Commit(c *gin.Context) {
	if err := h.syncService.Commit(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// Rollback 丢弃待提交日志
func (h *SyncHandler) Rollback(c *gin.Context) {
	if err := h.syncService.Rollback(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// Pending 查看待提交日志概览
func (h *SyncHandler) Pending(c *gin.Context) {
	Success(c, h.syncService.Pending())
}

type hydrateRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// Hydrate 从后端拉取节点装入会话
func (h *SyncHandler) Hydrate(c *gin.Context) {
	var req hydrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.syncService.Hydrate(c.Request.Context(), req.IDs); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
