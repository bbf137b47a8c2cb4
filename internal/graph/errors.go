package graph

import (
	"fmt"

	"ontograph/internal/ontology"
)

// CycleError 加边会在主动关系诱导子图中引入环。
// 该边被整体拒绝，图保持原状。
type CycleError struct {
	Subject      NodeID
	Relationship ontology.QName
	Object       NodeID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle error: edge (%s, %s, %s) would close a containment cycle",
		e.Subject, e.Relationship, e.Object)
}

// NotFoundError 节点不存在
type NotFoundError struct {
	ID NodeID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node '%s' not found", e.ID)
}
