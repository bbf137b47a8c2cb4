package graph

import (
	"sort"

	"github.com/google/uuid"

	"ontograph/internal/ontology"
)

// NodeID 实例节点的唯一标识
type NodeID string

// NewNodeID 生成新的节点标识
func NewNodeID() NodeID {
	return NodeID(uuid.New().String())
}

// Node 实例节点：由一个或多个类定型，携带已校验的属性值
// 与按关系分组的邻接表。每条边都成对存储（正向与反向），
// 因此节点的 Edges 同时包含出边与经反向关系表示的入边。
type Node struct {
	ID         NodeID
	Classes    []ontology.QName
	Attributes map[ontology.QName]any
	Edges      map[ontology.QName]map[NodeID]struct{}
}

// NewNode 创建空节点
func NewNode(id NodeID, classes []ontology.QName) *Node {
	return &Node{
		ID:         id,
		Classes:    append([]ontology.QName(nil), classes...),
		Attributes: make(map[ontology.QName]any),
		Edges:      make(map[ontology.QName]map[NodeID]struct{}),
	}
}

// Clone 深拷贝节点（属性值为不可变标量或快照向量，浅拷贝即可）
func (n *Node) Clone() *Node {
	c := NewNode(n.ID, n.Classes)
	for k, v := range n.Attributes {
		if vec, ok := v.([]float64); ok {
			cp := make([]float64, len(vec))
			copy(cp, vec)
			c.Attributes[k] = cp
			continue
		}
		c.Attributes[k] = v
	}
	for rel, targets := range n.Edges {
		set := make(map[NodeID]struct{}, len(targets))
		for t := range targets {
			set[t] = struct{}{}
		}
		c.Edges[rel] = set
	}
	return c
}

// HasEdge 判断是否存在 (n, rel, target) 边
func (n *Node) HasEdge(rel ontology.QName, target NodeID) bool {
	set, ok := n.Edges[rel]
	if !ok {
		return false
	}
	_, ok = set[target]
	return ok
}

// Targets 返回某关系下的全部目标（排序保证确定性）
func (n *Node) Targets(rel ontology.QName) []NodeID {
	set := n.Edges[rel]
	out := make([]NodeID, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *Node) addEdge(rel ontology.QName, target NodeID) {
	set, ok := n.Edges[rel]
	if !ok {
		set = make(map[NodeID]struct{})
		n.Edges[rel] = set
	}
	set[target] = struct{}{}
}

func (n *Node) removeEdge(rel ontology.QName, target NodeID) {
	if set, ok := n.Edges[rel]; ok {
		delete(set, target)
		if len(set) == 0 {
			delete(n.Edges, rel)
		}
	}
}
