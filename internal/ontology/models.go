package ontology

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document 表示完整的模式文档（声明式 YAML）
type Document struct {
	Version       string            `yaml:"version"`
	Namespace     string            `yaml:"namespace"`
	Classes       []ClassDef        `yaml:"classes"`
	Relationships []RelationshipDef `yaml:"relationships"`
	Attributes    []AttributeDef    `yaml:"attributes"`
}

// ClassDef 类声明
type ClassDef struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Superclasses []string         `yaml:"superclasses"`
	Attributes   map[string]any   `yaml:"attributes"` // 属性引用 -> 默认值（null 表示沿用属性自身默认）
	Restrictions []RestrictionDef `yaml:"restrictions"`
	DisjointWith []ExpressionDef  `yaml:"disjoint_with"`
	EquivalentTo []ExpressionDef  `yaml:"equivalent_to"`
}

// RelationshipDef 关系声明
type RelationshipDef struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	Superclasses    []string       `yaml:"superclasses"`
	Inverse         string         `yaml:"inverse"` // 省略时自动合成
	Domain          *ExpressionDef `yaml:"domain"`
	Range           *ExpressionDef `yaml:"range"`
	Characteristics []string       `yaml:"characteristics"`
	Active          *bool          `yaml:"active"` // 省略时沿父类继承，默认被动
}

// AttributeDef 属性声明
type AttributeDef struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Superclasses []string `yaml:"superclasses"`
	Datatype     string   `yaml:"datatype"`
	Default      any      `yaml:"default"`
	HasDefault   bool     `yaml:"-"`
}

// rejectUnknownKeys 自定义解码器内 KnownFields 不生效，手工核对映射键
func rejectUnknownKeys(node *yaml.Node, allowed ...string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: unrecognized field '%s'", node.Content[i].Line, key)
		}
	}
	return nil
}

// UnmarshalYAML 区分 "default: null" 与未声明 default
func (a *AttributeDef) UnmarshalYAML(node *yaml.Node) error {
	if err := rejectUnknownKeys(node, "name", "description", "superclasses", "datatype", "default"); err != nil {
		return err
	}
	type plain struct {
		Name         string   `yaml:"name"`
		Description  string   `yaml:"description"`
		Superclasses []string `yaml:"superclasses"`
		Datatype     string   `yaml:"datatype"`
		Default      any      `yaml:"default"`
	}
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	a.Name = p.Name
	a.Description = p.Description
	a.Superclasses = p.Superclasses
	a.Datatype = p.Datatype
	a.Default = p.Default
	a.HasDefault = false
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "default" {
			a.HasDefault = p.Default != nil
		}
	}
	return nil
}

// RestrictionDef 关系约束声明
type RestrictionDef struct {
	Relationship string         `yaml:"relationship"`
	Target       *ExpressionDef `yaml:"target"`
	Min          int            `yaml:"min"`
	Max          *int           `yaml:"max"` // 省略表示不限
	Exclusive    bool           `yaml:"exclusive"`
}

// ExpressionDef 类表达式声明。标量为类引用，映射为布尔组合或关系约束。
type ExpressionDef struct {
	Ref         string
	And         []ExpressionDef
	Or          []ExpressionDef
	Not         *ExpressionDef
	Restriction *RestrictionDef
}

// UnmarshalYAML 解析表达式的三种形态
func (e *ExpressionDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&e.Ref)
	case yaml.MappingNode:
		keys := make(map[string]bool, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keys[node.Content[i].Value] = true
		}
		switch {
		case keys["and"]:
			if err := rejectUnknownKeys(node, "and"); err != nil {
				return err
			}
			var m struct {
				And []ExpressionDef `yaml:"and"`
			}
			if err := node.Decode(&m); err != nil {
				return err
			}
			e.And = m.And
		case keys["or"]:
			if err := rejectUnknownKeys(node, "or"); err != nil {
				return err
			}
			var m struct {
				Or []ExpressionDef `yaml:"or"`
			}
			if err := node.Decode(&m); err != nil {
				return err
			}
			e.Or = m.Or
		case keys["not"]:
			if err := rejectUnknownKeys(node, "not"); err != nil {
				return err
			}
			var m struct {
				Not *ExpressionDef `yaml:"not"`
			}
			if err := node.Decode(&m); err != nil {
				return err
			}
			e.Not = m.Not
		case keys["relationship"]:
			if err := rejectUnknownKeys(node, "relationship", "target", "min", "max", "exclusive"); err != nil {
				return err
			}
			var r RestrictionDef
			if err := node.Decode(&r); err != nil {
				return err
			}
			e.Restriction = &r
		default:
			return fmt.Errorf("line %d: unrecognized class expression", node.Line)
		}
		return nil
	}
	return fmt.Errorf("line %d: class expression must be a reference or a mapping", node.Line)
}
