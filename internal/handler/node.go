package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ontograph/internal/service"
)

// NodeHandler 实例节点处理器
type NodeHandler struct {
	nodeService *service.NodeService
}

// NewNodeHandler 创建实例节点处理器
func NewNodeHandler(nodeService *service.NodeService) *NodeHandler {
	return &NodeHandler{nodeService: nodeService}
}

type createNodeRequest struct {
	Classes    []string       `json:"classes" binding:"required"`
	Attributes map[string]any `json:"attributes"`
}

// CreateNode 创建节点
func (h *NodeHandler) CreateNode(c *gin.Context) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.nodeService.CreateNode(req.Classes, req.Attributes)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, map[string]string{"id": id})
}

// GetNode 获取节点详情
func (h *NodeHandler) GetNode(c *gin.Context) {
	view, err := h.nodeService.GetNode(c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, view)
}

// UpdateNode 更新节点属性
func (h *NodeHandler) UpdateNode(c *gin.Context) {
	var attrs map[string]any
	if err := c.ShouldBindJSON(&attrs); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.nodeService.SetAttributes(c.Param("id"), attrs); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// DeleteNode 删除节点
func (h *NodeHandler) DeleteNode(c *gin.Context) {
	if err := h.nodeService.DeleteNode(c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// ListNodes 列出会话跟踪的节点
func (h *NodeHandler) ListNodes(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	views, total, err := h.nodeService.ListNodes(offset, limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, map[string]any{
		"items":  views,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// CheckIsA 判断节点是否属于某类
func (h *NodeHandler) CheckIsA(c *gin.Context) {
	ok, err := h.nodeService.IsA(c.Param("id"), c.Param("class"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, map[string]bool{"is_a": ok})
}
