package engine

import (
	"fmt"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
)

// Mode 一致性模式，按模式/会话选定一次，统一生效
type Mode int

const (
	// Strict 每次结构变更立即校验定义域/值域/声明/基数
	Strict Mode = iota
	// MinRequirements 容忍未声明的结构，基数只在提交时校验
	MinRequirements
	// Ignore 不做结构与基数校验（数据类型检查始终保留）
	Ignore
)

// String 返回模式名
func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case MinRequirements:
		return "minimum-requirements"
	case Ignore:
		return "ignore"
	}
	return "unknown"
}

// ParseMode 解析模式名
func ParseMode(s string) (Mode, error) {
	switch s {
	case "strict":
		return Strict, nil
	case "minimum-requirements", "min-requirements":
		return MinRequirements, nil
	case "ignore":
		return Ignore, nil
	}
	return 0, fmt.Errorf("unknown consistency mode '%s'", s)
}

// Engine 一致性引擎。校验是纯函数：只读状态，绝不修改；
// 相同的图与模式总是给出相同结论。
type Engine struct {
	loader *ontology.Loader
	mode   Mode
}

// New 创建一致性引擎
func New(loader *ontology.Loader, mode Mode) *Engine {
	return &Engine{loader: loader, mode: mode}
}

// Mode 返回当前模式
func (e *Engine) Mode() Mode {
	return e.mode
}

// CheckCreate 实例化前检查：严格模式要求提供的属性均适用于
// 给定类，且每个适用属性都能取到值（显式提供或有默认值）。
func (e *Engine) CheckCreate(classes []ontology.QName, attrs map[ontology.QName]any) error {
	if e.mode != Strict {
		return nil
	}
	reg := e.loader.Registry()
	merged := make(map[ontology.QName]*ontology.AttributeSpec)
	for _, cq := range classes {
		specs, err := reg.AttributesOf(cq)
		if err != nil {
			return err
		}
		for aq, spec := range specs {
			if _, ok := merged[aq]; !ok {
				merged[aq] = spec
			}
		}
	}
	for aq := range attrs {
		if _, ok := merged[aq]; !ok {
			return &ConstraintError{Attribute: aq, Message: "attribute not declared for the node's classes"}
		}
	}
	for aq, spec := range merged {
		if _, ok := attrs[aq]; !ok && !spec.HasDefault {
			return &ConstraintError{Attribute: aq, Message: "attribute has no value and no default"}
		}
	}
	return nil
}

// CheckSetAttribute 赋值前检查：严格模式要求属性对节点的类适用
func (e *Engine) CheckSetAttribute(g *graph.Graph, id graph.NodeID, attr ontology.QName) error {
	if e.mode != Strict {
		return nil
	}
	reg := e.loader.Registry()
	node, err := g.Get(id)
	if err != nil {
		return err
	}
	for _, cq := range node.Classes {
		specs, err := reg.AttributesOf(cq)
		if err != nil {
			continue
		}
		if _, ok := specs[attr]; ok {
			return nil
		}
	}
	return &ConstraintError{Node: id, Attribute: attr, Message: "attribute not declared for the node's classes"}
}

// CheckAddEdge 加边前检查（严格模式）：
//   - 关系须对主语类有声明（定义域表达式或类约束提及）
//   - 主语满足定义域、宾语满足值域
//   - 两个端点的基数上界都不会被突破
//   - 关系特征（functional / irreflexive / asymmetric 等）不被破坏
func (e *Engine) CheckAddEdge(g *graph.Graph, subject graph.NodeID, rel ontology.QName, object graph.NodeID) error {
	if e.mode != Strict {
		return nil
	}
	reg := e.loader.Registry()
	r, err := reg.Relationship(rel)
	if err != nil {
		return err
	}
	s, err := g.Get(subject)
	if err != nil {
		return err
	}
	o, err := g.Get(object)
	if err != nil {
		return err
	}

	if r.HasCharacteristic(ontology.Irreflexive) && subject == object {
		return &ConstraintError{Node: subject, Relationship: rel, Message: "relationship is irreflexive"}
	}
	if r.HasCharacteristic(ontology.Asymmetric) && o.HasEdge(rel, subject) {
		return &ConstraintError{Node: subject, Relationship: rel, Message: "relationship is asymmetric and the reverse edge exists"}
	}

	if r.Domain != nil {
		if !e.Satisfies(g, s, r.Domain) {
			return &ConstraintError{Node: subject, Relationship: rel,
				Message: fmt.Sprintf("subject does not satisfy domain %s", r.Domain)}
		}
	} else if !e.declaredFor(reg, s.Classes, rel) {
		return &ConstraintError{Node: subject, Relationship: rel, Message: "relationship not declared for the node's classes"}
	}
	if r.Range != nil && !e.Satisfies(g, o, r.Range) {
		return &ConstraintError{Node: object, Relationship: rel,
			Message: fmt.Sprintf("object does not satisfy range %s", r.Range)}
	}

	// 特征要对关系对的两个方向生效：合成反向自身不带特征，
	// 函数性约束落在配对关系上
	inv := r.Inverse
	invRel, _ := reg.Relationship(inv)
	if r.HasCharacteristic(ontology.Functional) ||
		(invRel != nil && invRel.HasCharacteristic(ontology.InverseFunctional)) {
		if len(s.Edges[rel]) >= 1 {
			return &ConstraintError{Node: subject, Relationship: rel, Message: "functional relationship already has a target"}
		}
	}
	if r.HasCharacteristic(ontology.InverseFunctional) ||
		(invRel != nil && invRel.HasCharacteristic(ontology.Functional)) {
		if len(o.Edges[inv]) >= 1 {
			return &ConstraintError{Node: object, Relationship: rel, Message: "inverse-functional relationship already has a subject"}
		}
	}

	// 边变更要在两个端点上复查基数：从 B 加边同样可能撑爆 A 的上界
	if err := e.checkMaxAfterAdd(g, reg, s, rel, o); err != nil {
		return err
	}
	if err := e.checkMaxAfterAdd(g, reg, o, inv, s); err != nil {
		return err
	}
	return nil
}

// checkMaxAfterAdd 判断在 node 上新增一条 rel 边指向 target
// 之后，node 所属类的各约束上界是否仍然成立
func (e *Engine) checkMaxAfterAdd(g *graph.Graph, reg *ontology.Registry, node *graph.Node, rel ontology.QName, target *graph.Node) error {
	for _, cq := range node.Classes {
		for _, rst := range reg.RestrictionsOf(cq) {
			if !reg.IsA(rel, rst.Relationship) {
				continue
			}
			targetMatches := rst.Target == nil || e.Satisfies(g, target, rst.Target)
			if rst.Exclusive && !targetMatches {
				return &ConstraintError{Node: node.ID, Relationship: rel,
					Message: fmt.Sprintf("restriction is exclusive to targets satisfying %s", rst.Target)}
			}
			if !targetMatches || rst.Max == ontology.Unbounded {
				continue
			}
			count := e.countMatching(g, reg, node, rst)
			if node.HasEdge(rel, target.ID) {
				continue // 重复边不增加计数
			}
			if count+1 > rst.Max {
				return &ConstraintError{Node: node.ID, Relationship: rst.Relationship,
					Message: fmt.Sprintf("cardinality %d exceeds maximum %d", count+1, rst.Max)}
			}
		}
	}
	return nil
}

// countMatching 统计 node 上满足约束的边数
func (e *Engine) countMatching(g *graph.Graph, reg *ontology.Registry, node *graph.Node, rst *ontology.Restriction) int {
	count := 0
	for edgeRel, targets := range node.Edges {
		if !reg.IsA(edgeRel, rst.Relationship) {
			continue
		}
		for t := range targets {
			tn, err := g.Get(t)
			if err != nil {
				continue
			}
			if rst.Target == nil || e.Satisfies(g, tn, rst.Target) {
				count++
			}
		}
	}
	return count
}

// declaredFor 判断关系是否被节点的类（或其约束）提及
func (e *Engine) declaredFor(reg *ontology.Registry, classes []ontology.QName, rel ontology.QName) bool {
	for _, cq := range classes {
		for _, rst := range reg.RestrictionsOf(cq) {
			if reg.IsA(rel, rst.Relationship) {
				return true
			}
		}
	}
	return false
}

// ValidateRegion 提交期校验：对区域内每个节点，检查其类的全部
// 约束（基数区间与排他性）以及函数性特征。收集所有违规，
// 而不是在第一条处停下。模式为 ignore 时不做任何校验。
func (e *Engine) ValidateRegion(g *graph.Graph, ids []graph.NodeID) error {
	if e.mode == Ignore {
		return nil
	}
	reg := e.loader.Registry()
	var violations []Violation

	for _, id := range ids {
		node, err := g.Get(id)
		if err != nil {
			continue // 已删除的节点不在校验范围
		}
		seen := make(map[*ontology.Restriction]bool)
		for _, cq := range node.Classes {
			for _, rst := range reg.RestrictionsOf(cq) {
				if seen[rst] {
					continue
				}
				seen[rst] = true
				violations = append(violations, e.checkRestriction(g, reg, node, rst)...)
			}
		}
		violations = append(violations, e.checkFunctional(reg, node)...)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (e *Engine) checkRestriction(g *graph.Graph, reg *ontology.Registry, node *graph.Node, rst *ontology.Restriction) []Violation {
	var out []Violation
	count := e.countMatching(g, reg, node, rst)
	if count < rst.Min {
		out = append(out, Violation{Node: node.ID, Relationship: rst.Relationship,
			Message: fmt.Sprintf("cardinality %d below minimum %d", count, rst.Min)})
	}
	if rst.Max != ontology.Unbounded && count > rst.Max {
		out = append(out, Violation{Node: node.ID, Relationship: rst.Relationship,
			Message: fmt.Sprintf("cardinality %d exceeds maximum %d", count, rst.Max)})
	}
	if rst.Exclusive && rst.Target != nil {
		for edgeRel, targets := range node.Edges {
			if !reg.IsA(edgeRel, rst.Relationship) {
				continue
			}
			for t := range targets {
				tn, err := g.Get(t)
				if err != nil {
					continue
				}
				if !e.Satisfies(g, tn, rst.Target) {
					out = append(out, Violation{Node: node.ID, Relationship: rst.Relationship,
						Message: fmt.Sprintf("target '%s' violates exclusive restriction %s", t, rst.Target)})
				}
			}
		}
	}
	return out
}

func (e *Engine) checkFunctional(reg *ontology.Registry, node *graph.Node) []Violation {
	var out []Violation
	for edgeRel, targets := range node.Edges {
		rel, err := reg.Relationship(edgeRel)
		if err != nil {
			continue
		}
		if rel.HasCharacteristic(ontology.Functional) && len(targets) > 1 {
			out = append(out, Violation{Node: node.ID, Relationship: edgeRel,
				Message: fmt.Sprintf("functional relationship has %d targets", len(targets))})
		}
	}
	return out
}

// Satisfies 纯递归谓词：判断节点是否满足类表达式。
// 基于节点声明的类型集与边集求值，不依赖运行时反射。
func (e *Engine) Satisfies(g *graph.Graph, node *graph.Node, expr *ontology.Expression) bool {
	if expr == nil {
		return true
	}
	reg := e.loader.Registry()
	switch {
	case !expr.Ref.IsZero():
		for _, cq := range node.Classes {
			if reg.IsA(cq, expr.Ref) {
				return true
			}
		}
		return false
	case expr.Restriction != nil:
		rst := expr.Restriction
		count := e.countMatching(g, reg, node, rst)
		if count < rst.Min {
			return false
		}
		if rst.Max != ontology.Unbounded && count > rst.Max {
			return false
		}
		if rst.Exclusive && rst.Target != nil {
			for edgeRel, targets := range node.Edges {
				if !reg.IsA(edgeRel, rst.Relationship) {
					continue
				}
				for t := range targets {
					tn, err := g.Get(t)
					if err != nil {
						continue
					}
					if !e.Satisfies(g, tn, rst.Target) {
						return false
					}
				}
			}
		}
		return true
	case expr.Not != nil:
		return !e.Satisfies(g, node, expr.Not)
	case len(expr.And) > 0:
		for _, sub := range expr.And {
			if !e.Satisfies(g, node, sub) {
				return false
			}
		}
		return true
	case len(expr.Or) > 0:
		for _, sub := range expr.Or {
			if e.Satisfies(g, node, sub) {
				return true
			}
		}
		return false
	}
	return true
}
