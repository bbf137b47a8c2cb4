package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ontograph/internal/service"
)

// EdgeHandler 边处理器
type EdgeHandler struct {
	edgeService *service.EdgeService
}

// NewEdgeHandler 创建边处理器
func NewEdgeHandler(edgeService *service.EdgeService) *EdgeHandler {
	return &EdgeHandler{edgeService: edgeService}
}

type edgeRequest struct {
	Relationship string `json:"relationship" binding:"required"`
	Object       string `json:"object" binding:"required"`
}

// AddEdge 安装边对
func (h *EdgeHandler) AddEdge(c *gin.Context) {
	var req edgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.edgeService.AddEdge(c.Param("id"), req.Relationship, req.Object); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// RemoveEdge 移除边对
func (h *EdgeHandler) RemoveEdge(c *gin.Context) {
	var req edgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.edgeService.RemoveEdge(c.Param("id"), req.Relationship, req.Object); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GetNeighbors 查询节点沿某关系的邻居
func (h *EdgeHandler) GetNeighbors(c *gin.Context) {
	ids, err := h.edgeService.Neighbors(c.Param("id"), c.Param("relationship"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ids)
}
