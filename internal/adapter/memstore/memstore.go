// Package memstore 提供内存后端适配器，用于默认装配与测试。
package memstore

import (
	"context"
	"fmt"
	"sync"

	"ontograph/internal/graph"
	"ontograph/internal/session"
)

// Store 内存后端。Apply 在影子副本上完成全部写入后整体换入，
// 保证全有或全无；Fetch 返回请求节点及其边目标的闭包。
type Store struct {
	mu    sync.RWMutex
	nodes map[graph.NodeID]*session.NodeState

	// FailNext 使下一次 Apply 失败（测试后端故障路径用）
	FailNext error
}

// New 创建内存后端
func New() *Store {
	return &Store{nodes: make(map[graph.NodeID]*session.NodeState)}
}

var _ session.Adapter = (*Store)(nil)

// Apply 应用变更集
func (st *Store) Apply(_ context.Context, delta *session.Delta) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.FailNext; err != nil {
		st.FailNext = nil
		return &session.AdapterError{Op: "apply", Err: err}
	}

	// 影子副本：任何一步失败都不触碰已存状态
	next := make(map[graph.NodeID]*session.NodeState, len(st.nodes))
	for id, n := range st.nodes {
		next[id] = n
	}

	for _, created := range delta.Created {
		if _, exists := next[created.ID]; exists {
			return &session.AdapterError{Op: "apply", Err: fmt.Errorf("node '%s' already exists", created.ID)}
		}
		next[created.ID] = cloneState(created)
	}
	for _, upd := range delta.Updated {
		old, ok := next[upd.ID]
		if !ok {
			return &session.AdapterError{Op: "apply", Err: fmt.Errorf("node '%s' does not exist", upd.ID)}
		}
		cur := cloneState(old)
		applyUpdate(cur, upd)
		next[upd.ID] = cur
	}
	for _, id := range delta.Deleted {
		if _, ok := next[id]; !ok {
			return &session.AdapterError{Op: "apply", Err: fmt.Errorf("node '%s' does not exist", id)}
		}
		delete(next, id)
	}

	st.nodes = next
	return nil
}

// Fetch 拉取节点快照，自动扩展边目标闭包以避免悬空引用
func (st *Store) Fetch(_ context.Context, ids []graph.NodeID) (map[graph.NodeID]*session.NodeState, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make(map[graph.NodeID]*session.NodeState)
	queue := append([]graph.NodeID(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := out[id]; done {
			continue
		}
		n, ok := st.nodes[id]
		if !ok {
			return nil, &session.AdapterError{Op: "fetch", Err: fmt.Errorf("node '%s' does not exist", id)}
		}
		out[id] = cloneState(n)
		for _, targets := range n.Edges {
			queue = append(queue, targets...)
		}
	}
	return out, nil
}

// Len 返回存储的节点数
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.nodes)
}

func cloneState(s *session.NodeState) *session.NodeState {
	return session.StateOf(s.Node())
}

func applyUpdate(st *session.NodeState, upd *session.NodeUpdate) {
	node := st.Node()
	for k, v := range upd.SetAttributes {
		node.Attributes[k] = v
	}
	for rel, targets := range upd.AddedEdges {
		for _, t := range targets {
			set := node.Edges[rel]
			if set == nil {
				set = make(map[graph.NodeID]struct{})
				node.Edges[rel] = set
			}
			set[t] = struct{}{}
		}
	}
	for rel, targets := range upd.RemovedEdges {
		for _, t := range targets {
			if set, ok := node.Edges[rel]; ok {
				delete(set, t)
				if len(set) == 0 {
					delete(node.Edges, rel)
				}
			}
		}
	}
	*st = *session.StateOf(node)
}
