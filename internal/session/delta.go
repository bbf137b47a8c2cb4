package session

import (
	"sort"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
)

// NodeState 节点的完整状态（适配器侧的快照形式）。
// Edges 含该节点的全部边，包括经反向关系表示的入边。
type NodeState struct {
	ID         graph.NodeID                        `json:"id"`
	Classes    []ontology.QName                    `json:"classes"`
	Attributes map[ontology.QName]any              `json:"attributes,omitempty"`
	Edges      map[ontology.QName][]graph.NodeID   `json:"edges,omitempty"`
}

// StateOf 提取节点状态（目标列表排序保证确定性）
func StateOf(n *graph.Node) *NodeState {
	s := &NodeState{
		ID:      n.ID,
		Classes: append([]ontology.QName(nil), n.Classes...),
	}
	if len(n.Attributes) > 0 {
		s.Attributes = make(map[ontology.QName]any, len(n.Attributes))
		for k, v := range n.Attributes {
			s.Attributes[k] = v
		}
	}
	if len(n.Edges) > 0 {
		s.Edges = make(map[ontology.QName][]graph.NodeID, len(n.Edges))
		for rel := range n.Edges {
			s.Edges[rel] = n.Targets(rel)
		}
	}
	return s
}

// Node 由状态还原节点
func (s *NodeState) Node() *graph.Node {
	n := graph.NewNode(s.ID, s.Classes)
	for k, v := range s.Attributes {
		n.Attributes[k] = v
	}
	for rel, targets := range s.Edges {
		for _, t := range targets {
			n.Edges[rel] = appendTarget(n.Edges[rel], t)
		}
	}
	return n
}

func appendTarget(set map[graph.NodeID]struct{}, t graph.NodeID) map[graph.NodeID]struct{} {
	if set == nil {
		set = make(map[graph.NodeID]struct{})
	}
	set[t] = struct{}{}
	return set
}

// NodeUpdate 已有节点的最小变更：仅包含改动的属性与增删的边
type NodeUpdate struct {
	ID            graph.NodeID                      `json:"id"`
	SetAttributes map[ontology.QName]any            `json:"set_attributes,omitempty"`
	AddedEdges    map[ontology.QName][]graph.NodeID `json:"added_edges,omitempty"`
	RemovedEdges  map[ontology.QName][]graph.NodeID `json:"removed_edges,omitempty"`
}

func (u *NodeUpdate) empty() bool {
	return len(u.SetAttributes) == 0 && len(u.AddedEdges) == 0 && len(u.RemovedEdges) == 0
}

// Delta 提交时计算的最小变更集：新建节点带全量状态，
// 更新节点只带差异，删除只带标识
type Delta struct {
	Created []*NodeState   `json:"created,omitempty"`
	Updated []*NodeUpdate  `json:"updated,omitempty"`
	Deleted []graph.NodeID `json:"deleted,omitempty"`
}

// Empty 判断变更集是否为空
func (d *Delta) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Deleted) == 0
}

// diffNodes 计算 old 到 cur 的最小变更
func diffNodes(old, cur *graph.Node) *NodeUpdate {
	u := &NodeUpdate{ID: cur.ID}

	for k, v := range cur.Attributes {
		if ov, ok := old.Attributes[k]; !ok || !valueEqual(ov, v) {
			if u.SetAttributes == nil {
				u.SetAttributes = make(map[ontology.QName]any)
			}
			u.SetAttributes[k] = v
		}
	}

	for rel := range cur.Edges {
		for _, t := range cur.Targets(rel) {
			if !old.HasEdge(rel, t) {
				if u.AddedEdges == nil {
					u.AddedEdges = make(map[ontology.QName][]graph.NodeID)
				}
				u.AddedEdges[rel] = append(u.AddedEdges[rel], t)
			}
		}
	}
	for rel := range old.Edges {
		for _, t := range old.Targets(rel) {
			if !cur.HasEdge(rel, t) {
				if u.RemovedEdges == nil {
					u.RemovedEdges = make(map[ontology.QName][]graph.NodeID)
				}
				u.RemovedEdges[rel] = append(u.RemovedEdges[rel], t)
			}
		}
	}
	return u
}

func valueEqual(a, b any) bool {
	av, aok := a.([]float64)
	bv, bok := b.([]float64)
	if aok || bok {
		if !aok || !bok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func sortedIDs(set map[graph.NodeID]bool) []graph.NodeID {
	out := make([]graph.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
