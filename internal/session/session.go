package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"ontograph/internal/engine"
	"ontograph/internal/graph"
	"ontograph/internal/ontology"
)

// ErrCommitting 提交进行中，被跟踪节点上的结构变更被拒绝
var ErrCommitting = errors.New("session is committing")

// State 会话状态
type State int

const (
	// StateOpen 接受变更，累积待提交日志
	StateOpen State = iota
	// StateCommitting 校验与变更集计算进行中，不接受新变更
	StateCommitting
)

// Session 事务边界：包裹对象图中的一个区域，跟踪自上次同步点
// 以来的全部待提交变更。提交对调用方是全有或全无的；失败时
// 待提交日志原样保留，图停留在提交入口时的状态，重试会产出
// 完全相同的变更集。会话句柄显式传递，不存在环境全局会话。
type Session struct {
	mu      sync.Mutex
	graph   *graph.Graph
	engine  *engine.Engine
	adapter Adapter

	state     State
	tracked   map[graph.NodeID]bool
	committed map[graph.NodeID]*graph.Node // 最近一次提交的快照
	created   map[graph.NodeID]bool
	updated   map[graph.NodeID]bool
	deleted   map[graph.NodeID]bool
}

// New 创建会话
func New(g *graph.Graph, e *engine.Engine, adapter Adapter) *Session {
	return &Session{
		graph:     g,
		engine:    e,
		adapter:   adapter,
		state:     StateOpen,
		tracked:   make(map[graph.NodeID]bool),
		committed: make(map[graph.NodeID]*graph.Node),
		created:   make(map[graph.NodeID]bool),
		updated:   make(map[graph.NodeID]bool),
		deleted:   make(map[graph.NodeID]bool),
	}
}

// State 返回会话状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Graph 返回底层对象图（只读用途）
func (s *Session) Graph() *graph.Graph {
	return s.graph
}

// Tracked 返回会话跟踪的全部节点标识
func (s *Session) Tracked() []graph.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.tracked)
}

// Pending 返回待提交日志的概览
func (s *Session) Pending() (created, updated, deleted []graph.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.created), sortedIDs(s.updated), sortedIDs(s.deleted)
}

// Create 在会话区域内实例化节点
func (s *Session) Create(classes []ontology.QName, attrs map[ontology.QName]any) (graph.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return "", ErrCommitting
	}
	if err := s.engine.CheckCreate(classes, attrs); err != nil {
		return "", err
	}
	id, err := s.graph.Create(classes, attrs)
	if err != nil {
		return "", err
	}
	s.tracked[id] = true
	s.created[id] = true
	return id, nil
}

// Get 读取节点
func (s *Session) Get(id graph.NodeID) (*graph.Node, error) {
	if err := s.requireTracked(id); err != nil {
		return nil, err
	}
	return s.graph.Get(id)
}

// Neighbors 读取节点沿某关系的邻居
func (s *Session) Neighbors(id graph.NodeID, rel ontology.QName) ([]graph.NodeID, error) {
	if err := s.requireTracked(id); err != nil {
		return nil, err
	}
	return s.graph.Neighbors(id, rel)
}

// IsA 判断节点是否属于某类
func (s *Session) IsA(id graph.NodeID, class ontology.QName) (bool, error) {
	if err := s.requireTracked(id); err != nil {
		return false, err
	}
	return s.graph.IsA(id, class)
}

// SetAttribute 设置属性值
func (s *Session) SetAttribute(id graph.NodeID, attr ontology.QName, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	if !s.tracked[id] {
		return &graph.NotFoundError{ID: id}
	}
	if err := s.engine.CheckSetAttribute(s.graph, id, attr); err != nil {
		return err
	}
	if err := s.graph.SetAttribute(id, attr, value); err != nil {
		return err
	}
	s.markDirty(id)
	return nil
}

// AddEdge 安装边对。重复加已有边是无操作，不进入待提交日志。
func (s *Session) AddEdge(subject graph.NodeID, rel ontology.QName, object graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	if !s.tracked[subject] {
		return &graph.NotFoundError{ID: subject}
	}
	if !s.tracked[object] {
		return &graph.NotFoundError{ID: object}
	}
	sub, err := s.graph.Get(subject)
	if err != nil {
		return err
	}
	if sub.HasEdge(rel, object) {
		return nil
	}
	if err := s.engine.CheckAddEdge(s.graph, subject, rel, object); err != nil {
		return err
	}
	if err := s.graph.AddEdge(subject, rel, object); err != nil {
		return err
	}
	s.markDirty(subject)
	s.markDirty(object)
	return nil
}

// RemoveEdge 移除边对
func (s *Session) RemoveEdge(subject graph.NodeID, rel ontology.QName, object graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	if !s.tracked[subject] {
		return &graph.NotFoundError{ID: subject}
	}
	if err := s.graph.RemoveEdge(subject, rel, object); err != nil {
		return err
	}
	s.markDirty(subject)
	s.markDirty(object)
	return nil
}

// Remove 删除节点及涉及它的全部边对（浅删除，不级联）
func (s *Session) Remove(id graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	if !s.tracked[id] {
		return &graph.NotFoundError{ID: id}
	}
	node, err := s.graph.Get(id)
	if err != nil {
		return err
	}
	// 失去边的邻居也进入待提交日志
	for rel := range node.Edges {
		for _, t := range node.Targets(rel) {
			if t != id {
				s.markDirty(t)
			}
		}
	}
	if err := s.graph.Remove(id); err != nil {
		return err
	}
	delete(s.tracked, id)
	delete(s.updated, id)
	if s.created[id] {
		// 同一同步周期内创建又删除，净效果为无
		delete(s.created, id)
	} else {
		s.deleted[id] = true
	}
	return nil
}

// markDirty 将已提交过的节点标记为已更新
func (s *Session) markDirty(id graph.NodeID) {
	if !s.created[id] && s.tracked[id] {
		s.updated[id] = true
	}
}

func (s *Session) requireTracked(id graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracked[id] {
		return &graph.NotFoundError{ID: id}
	}
	return nil
}

// Commit 提交待提交日志：模式相关校验、计算最小变更集、交给
// 适配器应用。适配器执行期间不持有会话锁，但新变更会被拒绝。
// 校验或适配器失败时待提交日志原样保留并上抛错误。
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCommitting {
		s.mu.Unlock()
		return ErrCommitting
	}

	if err := s.engine.ValidateRegion(s.graph, sortedIDs(s.tracked)); err != nil {
		s.mu.Unlock()
		return err
	}

	delta := s.computeDeltaLocked()
	if delta.Empty() {
		s.mu.Unlock()
		return nil
	}
	s.state = StateCommitting
	s.mu.Unlock()

	// 长耗时的后端 I/O；取消等价于一次普通的提交失败
	err := s.adapter.Apply(ctx, delta)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateOpen
	if err != nil {
		return err
	}

	for id := range s.created {
		if node, gerr := s.graph.Get(id); gerr == nil {
			s.committed[id] = node.Clone()
		}
	}
	for id := range s.updated {
		if node, gerr := s.graph.Get(id); gerr == nil {
			s.committed[id] = node.Clone()
		}
	}
	for id := range s.deleted {
		delete(s.committed, id)
	}
	s.created = make(map[graph.NodeID]bool)
	s.updated = make(map[graph.NodeID]bool)
	s.deleted = make(map[graph.NodeID]bool)
	return nil
}

// computeDeltaLocked 计算最小变更集（调用方持锁）
func (s *Session) computeDeltaLocked() *Delta {
	d := &Delta{}
	for _, id := range sortedIDs(s.created) {
		if node, err := s.graph.Get(id); err == nil {
			d.Created = append(d.Created, StateOf(node))
		}
	}
	for _, id := range sortedIDs(s.updated) {
		old, ok := s.committed[id]
		if !ok {
			continue
		}
		cur, err := s.graph.Get(id)
		if err != nil {
			continue
		}
		if u := diffNodes(old, cur); !u.empty() {
			d.Updated = append(d.Updated, u)
		}
	}
	d.Deleted = sortedIDs(s.deleted)
	return d
}

// Rollback 丢弃待提交日志，把区域恢复到最近一次提交的形状
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	for id := range s.created {
		s.graph.Drop(id)
		delete(s.tracked, id)
	}
	for id := range s.updated {
		if snap, ok := s.committed[id]; ok {
			s.graph.Restore(snap)
		}
	}
	for id := range s.deleted {
		if snap, ok := s.committed[id]; ok {
			s.graph.Restore(snap)
			s.tracked[id] = true
		}
	}
	s.created = make(map[graph.NodeID]bool)
	s.updated = make(map[graph.NodeID]bool)
	s.deleted = make(map[graph.NodeID]bool)
	return nil
}

// Hydrate 从后端拉取节点并作为已提交状态装入会话区域
func (s *Session) Hydrate(ctx context.Context, ids []graph.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitting {
		return ErrCommitting
	}
	snaps, err := s.adapter.Fetch(ctx, ids)
	if err != nil {
		return err
	}
	reg := s.graph.Registry()
	for id, snap := range snaps {
		node := snap.Node()
		// 反序列化会把整数还原成 float64，按声明的数据类型归一化
		for aq, v := range node.Attributes {
			attr, aerr := reg.Attribute(aq)
			if aerr != nil {
				continue
			}
			nv, nerr := attr.Datatype.Normalize(v)
			if nerr != nil {
				return &ontology.DatatypeError{Attribute: aq, Err: nerr}
			}
			node.Attributes[aq] = nv
		}
		s.graph.Restore(node)
		s.committed[id] = node.Clone()
		s.tracked[id] = true
	}
	return nil
}

// Merge 把源会话的活动区域并入本会话：逐节点创建或更新等价
// 节点，保留标识，此后这些节点改由本会话跟踪（用于在后端之间
// 迁移子图）。两个会话必须不同且都未在提交中。
func (s *Session) Merge(src *Session) error {
	if src == s {
		return fmt.Errorf("cannot merge a session into itself")
	}
	// 按地址固定加锁顺序，避免两个方向互相合并时死锁
	first, second := s, src
	if uintptr(unsafe.Pointer(src)) < uintptr(unsafe.Pointer(s)) {
		first, second = src, s
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	if s.state == StateCommitting || src.state == StateCommitting {
		return ErrCommitting
	}

	for _, id := range sortedIDs(src.tracked) {
		node, err := src.graph.Get(id)
		if err != nil {
			continue
		}
		s.graph.Restore(node)
		s.tracked[id] = true
		if _, known := s.committed[id]; known {
			s.updated[id] = true
		} else {
			s.created[id] = true
		}
	}
	for id := range src.tracked {
		if src.graph != s.graph {
			src.graph.Drop(id)
		}
		delete(src.tracked, id)
		delete(src.created, id)
		delete(src.updated, id)
		delete(src.committed, id)
	}
	return nil
}
