package engine

import (
	"fmt"
	"strings"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
)

// ConstraintError 单条结构性违规，严格模式下在出错调用处同步抛出
type ConstraintError struct {
	Node         graph.NodeID
	Relationship ontology.QName // 可为空
	Attribute    ontology.QName // 可为空
	Message      string
}

func (e *ConstraintError) Error() string {
	switch {
	case !e.Relationship.IsZero():
		return fmt.Sprintf("constraint error: node '%s', relationship '%s': %s", e.Node, e.Relationship, e.Message)
	case !e.Attribute.IsZero():
		return fmt.Sprintf("constraint error: node '%s', attribute '%s': %s", e.Node, e.Attribute, e.Message)
	}
	return fmt.Sprintf("constraint error: node '%s': %s", e.Node, e.Message)
}

// Violation 提交期校验发现的一条基数违规
type Violation struct {
	Node         graph.NodeID   `json:"node"`
	Relationship ontology.QName `json:"relationship"`
	Message      string         `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("node '%s', relationship '%s': %s", v.Node, v.Relationship, v.Message)
}

// ValidationError 提交期收集到的全部违规（不只第一条）
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("validation failed (%d violations): %s", len(e.Violations), strings.Join(parts, "; "))
}
