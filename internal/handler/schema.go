package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ontograph/internal/service"
)

// SchemaHandler 模式查询处理器
type SchemaHandler struct {
	schemaService *service.SchemaService
}

// NewSchemaHandler 创建模式查询处理器
func NewSchemaHandler(schemaService *service.SchemaService) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService}
}

// ListClasses 列出所有类
func (h *SchemaHandler) ListClasses(c *gin.Context) {
	Success(c, h.schemaService.ListClasses())
}

// GetClass 查询类定义
func (h *SchemaHandler) GetClass(c *gin.Context) {
	view, err := h.schemaService.GetClass(c.Param("name"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error())
		return
	}
	Success(c, view)
}

// GetSuperclasses 查询类的全部父类
func (h *SchemaHandler) GetSuperclasses(c *gin.Context) {
	names, err := h.schemaService.Superclasses(c.Param("name"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error())
		return
	}
	Success(c, names)
}

// GetSubclasses 查询类的全部子类
func (h *SchemaHandler) GetSubclasses(c *gin.Context) {
	names, err := h.schemaService.Subclasses(c.Param("name"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error())
		return
	}
	Success(c, names)
}

// ListRelationships 列出所有关系
func (h *SchemaHandler) ListRelationships(c *gin.Context) {
	Success(c, h.schemaService.ListRelationships())
}

// GetRelationship 查询关系定义
func (h *SchemaHandler) GetRelationship(c *gin.Context) {
	view, err := h.schemaService.GetRelationship(c.Param("name"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error())
		return
	}
	Success(c, view)
}

// ListAttributes 列出所有属性
func (h *SchemaHandler) ListAttributes(c *gin.Context) {
	Success(c, h.schemaService.ListAttributes())
}

// Reload 重新加载模式文档
func (h *SchemaHandler) Reload(c *gin.Context) {
	if err := h.schemaService.Reload(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
