package graph

import (
	"fmt"
	"sort"
	"sync"

	"ontograph/internal/ontology"
)

// Graph 类型化对象图。每次结构变更都维护两条不变式：
// 反向边对称（加 (A,R,B) 必同时持有 (B, inverse(R), A)）与
// 主动关系诱导子图的无环性。
type Graph struct {
	loader *ontology.Loader
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
}

// New 创建空图
func New(loader *ontology.Loader) *Graph {
	return &Graph{
		loader: loader,
		nodes:  make(map[NodeID]*Node),
	}
}

// Registry 返回当前生效的模式注册表
func (g *Graph) Registry() *ontology.Registry {
	return g.loader.Registry()
}

// Create 依据给定类实例化节点。提供的属性值会按合并后的属性集
// 做数据类型检查；缺省属性取合并默认值，没有默认值则保持未设。
func (g *Graph) Create(classes []ontology.QName, attrs map[ontology.QName]any) (NodeID, error) {
	reg := g.Registry()
	if len(classes) == 0 {
		return "", fmt.Errorf("a node requires at least one class")
	}
	merged := make(map[ontology.QName]*ontology.AttributeSpec)
	for _, cq := range classes {
		specs, err := reg.AttributesOf(cq)
		if err != nil {
			return "", err
		}
		for aq, spec := range specs {
			if _, ok := merged[aq]; !ok {
				merged[aq] = spec
			}
		}
	}

	node := NewNode(NewNodeID(), classes)
	for aq, value := range attrs {
		attr, err := reg.Attribute(aq)
		if err != nil {
			return "", err
		}
		v, err := attr.Datatype.Normalize(value)
		if err != nil {
			return "", &ontology.DatatypeError{Attribute: aq, Err: err}
		}
		node.Attributes[aq] = v
	}
	for aq, spec := range merged {
		if _, set := node.Attributes[aq]; !set && spec.HasDefault {
			node.Attributes[aq] = spec.Default
		}
	}

	g.mu.Lock()
	g.nodes[node.ID] = node
	g.mu.Unlock()
	return node.ID, nil
}

// Get 返回节点。返回值归图所有，调用方不得直接修改。
func (g *Graph) Get(id NodeID) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return node, nil
}

// Has 判断节点是否存在
func (g *Graph) Has(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeIDs 返回全部节点标识（排序保证确定性）
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Neighbors 返回沿某关系可达的邻居
func (g *Graph) Neighbors(id NodeID, rel ontology.QName) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return node.Targets(rel), nil
}

// IsA 判断节点是否（直接或经继承）属于某类
func (g *Graph) IsA(id NodeID, class ontology.QName) (bool, error) {
	reg := g.Registry()
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return false, &NotFoundError{ID: id}
	}
	for _, cq := range node.Classes {
		if reg.IsA(cq, class) {
			return true, nil
		}
	}
	return false, nil
}

// SetAttribute 设置属性值。数据类型检查与模式无关，始终执行。
func (g *Graph) SetAttribute(id NodeID, attr ontology.QName, value any) error {
	reg := g.Registry()
	a, err := reg.Attribute(attr)
	if err != nil {
		return err
	}
	v, err := a.Datatype.Normalize(value)
	if err != nil {
		return &ontology.DatatypeError{Attribute: attr, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	node.Attributes[attr] = v
	return nil
}

// AddEdge 以单一原子操作安装 (subject, rel, object) 及其反向边。
// 若 rel（或其反向）属于主动划分且该边会闭合包含环，
// 返回 CycleError 且两个方向都不会安装。
// 重复加已有边是无操作。
func (g *Graph) AddEdge(subject NodeID, rel ontology.QName, object NodeID) error {
	reg := g.Registry()
	inv, err := reg.InverseOf(rel)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.nodes[subject]
	if !ok {
		return &NotFoundError{ID: subject}
	}
	o, ok := g.nodes[object]
	if !ok {
		return &NotFoundError{ID: object}
	}
	if s.HasEdge(rel, object) {
		return nil
	}

	// 包含方向取决于这对关系中哪一个是主动的
	switch {
	case reg.IsActive(rel):
		if g.reachesLocked(reg, object, subject) {
			return &CycleError{Subject: subject, Relationship: rel, Object: object}
		}
	case reg.IsActive(inv):
		if g.reachesLocked(reg, subject, object) {
			return &CycleError{Subject: subject, Relationship: rel, Object: object}
		}
	}

	s.addEdge(rel, object)
	o.addEdge(inv, subject)
	return nil
}

// RemoveEdge 以单一原子操作移除 (subject, rel, object) 及其反向边
func (g *Graph) RemoveEdge(subject NodeID, rel ontology.QName, object NodeID) error {
	reg := g.Registry()
	inv, err := reg.InverseOf(rel)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.nodes[subject]
	if !ok {
		return &NotFoundError{ID: subject}
	}
	o, ok := g.nodes[object]
	if !ok {
		return &NotFoundError{ID: object}
	}
	if !s.HasEdge(rel, object) {
		return fmt.Errorf("edge (%s, %s, %s) does not exist", subject, rel, object)
	}
	s.removeEdge(rel, object)
	o.removeEdge(inv, subject)
	return nil
}

// Remove 删除节点并移除所有涉及它的边对。删除是浅的：
// 不会级联删除子节点，需要级联的调用方自行遍历。
func (g *Graph) Remove(id NodeID) error {
	reg := g.Registry()

	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	for rel, targets := range node.Edges {
		inv, err := reg.InverseOf(rel)
		if err != nil {
			continue // 模式已整体替换时可能出现未知关系，直接丢弃
		}
		for t := range targets {
			if other, ok := g.nodes[t]; ok {
				other.removeEdge(inv, id)
			}
		}
	}
	delete(g.nodes, id)
	return nil
}

// Restore 以给定状态整体覆盖节点（用于回填已提交快照与区域合并）。
// 不做一致性检查，调用方保证状态内部的边配对完整。
func (g *Graph) Restore(states ...*Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range states {
		g.nodes[s.ID] = s.Clone()
	}
}

// Drop 直接移除节点而不处理边（用于失败提交的区域恢复）
func (g *Graph) Drop(ids ...NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		delete(g.nodes, id)
	}
}

// reachesLocked 判断沿主动关系边能否从 from 走到 to（含 from == to）
func (g *Graph) reachesLocked(reg *ontology.Registry, from, to NodeID) bool {
	if from == to {
		return true
	}
	seen := map[NodeID]bool{from: true}
	stack := []NodeID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for rel, targets := range node.Edges {
			if !reg.IsActive(rel) {
				continue
			}
			for t := range targets {
				if t == to {
					return true
				}
				if !seen[t] {
					seen[t] = true
					stack = append(stack, t)
				}
			}
		}
	}
	return false
}
