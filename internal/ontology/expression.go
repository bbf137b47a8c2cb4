package ontology

import (
	"fmt"
	"strings"
)

// Unbounded 表示基数上界不受限制
const Unbounded = -1

// Expression 类表达式（标签联合）：
// 类引用 | 关系约束 | AND/OR/NOT 布尔组合。
// 有且仅有一个分支被设置。
type Expression struct {
	Ref         QName
	Restriction *Restriction
	And         []*Expression
	Or          []*Expression
	Not         *Expression
}

// Restriction 关系约束：沿某关系到满足目标表达式的边数必须落在
// [Min, Max] 区间内；Exclusive 表示不允许存在其它目标。
type Restriction struct {
	Relationship QName
	Target       *Expression // nil 表示任意目标
	Min          int
	Max          int // Unbounded 表示不限
	Exclusive    bool
}

// String 返回表达式的可读形式（用于错误信息）
func (e *Expression) String() string {
	switch {
	case e == nil:
		return "<any>"
	case !e.Ref.IsZero():
		return e.Ref.String()
	case e.Restriction != nil:
		r := e.Restriction
		max := "*"
		if r.Max != Unbounded {
			max = fmt.Sprintf("%d", r.Max)
		}
		return fmt.Sprintf("%s[%d..%s] -> %s", r.Relationship, r.Min, max, r.Target.String())
	case e.Not != nil:
		return "not(" + e.Not.String() + ")"
	case len(e.And) > 0:
		return "and(" + joinExprs(e.And) + ")"
	case len(e.Or) > 0:
		return "or(" + joinExprs(e.Or) + ")"
	}
	return "<empty>"
}

func joinExprs(exprs []*Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
