package service

import (
	"fmt"

	"ontograph/internal/ontology"
)

// SchemaService 模式查询服务
type SchemaService struct {
	loader *ontology.Loader
}

// NewSchemaService 创建模式查询服务
func NewSchemaService(loader *ontology.Loader) *SchemaService {
	return &SchemaService{loader: loader}
}

// ClassView 类的对外视图
type ClassView struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Superclasses []string       `json:"superclasses,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Restrictions []string       `json:"restrictions,omitempty"`
}

// RelationshipView 关系的对外视图
type RelationshipView struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Superclasses    []string `json:"superclasses,omitempty"`
	Inverse         string   `json:"inverse,omitempty"`
	Domain          string   `json:"domain,omitempty"`
	Range           string   `json:"range,omitempty"`
	Characteristics []string `json:"characteristics,omitempty"`
	Active          bool     `json:"active"`
	Synthetic       bool     `json:"synthetic,omitempty"`
}

// AttributeView 属性的对外视图
type AttributeView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Datatype    string `json:"datatype"`
	Default     any    `json:"default,omitempty"`
}

// ResolveName 把外部名称解析为限定名（缺省命名空间补全）
func (s *SchemaService) ResolveName(name string) (ontology.QName, error) {
	return ontology.ParseQName(name, s.loader.Registry().Namespace())
}

// ListClasses 列出所有类
func (s *SchemaService) ListClasses() []ClassView {
	reg := s.loader.Registry()
	out := make([]ClassView, 0)
	for _, q := range reg.ClassNames() {
		if v, err := s.classView(q); err == nil {
			out = append(out, *v)
		}
	}
	return out
}

// GetClass 查询类定义
func (s *SchemaService) GetClass(name string) (*ClassView, error) {
	q, err := s.ResolveName(name)
	if err != nil {
		return nil, err
	}
	return s.classView(q)
}

func (s *SchemaService) classView(q ontology.QName) (*ClassView, error) {
	reg := s.loader.Registry()
	cls, err := reg.Class(q)
	if err != nil {
		return nil, err
	}
	v := &ClassView{Name: q.String(), Description: cls.Description}
	for _, sq := range cls.Superclasses {
		v.Superclasses = append(v.Superclasses, sq.String())
	}
	specs, err := reg.AttributesOf(q)
	if err == nil && len(specs) > 0 {
		v.Attributes = make(map[string]any, len(specs))
		for aq, spec := range specs {
			if spec.HasDefault {
				v.Attributes[aq.String()] = spec.Default
			} else {
				v.Attributes[aq.String()] = nil
			}
		}
	}
	for _, rst := range reg.RestrictionsOf(q) {
		v.Restrictions = append(v.Restrictions, (&ontology.Expression{Restriction: rst}).String())
	}
	return v, nil
}

// Superclasses 查询类的全部父类
func (s *SchemaService) Superclasses(name string) ([]string, error) {
	q, err := s.ResolveName(name)
	if err != nil {
		return nil, err
	}
	reg := s.loader.Registry()
	if !reg.HasEntity(q) {
		return nil, fmt.Errorf("entity '%s' not found", q)
	}
	return qnameStrings(reg.Superclasses(q)), nil
}

// Subclasses 查询类的全部子类
func (s *SchemaService) Subclasses(name string) ([]string, error) {
	q, err := s.ResolveName(name)
	if err != nil {
		return nil, err
	}
	reg := s.loader.Registry()
	if !reg.HasEntity(q) {
		return nil, fmt.Errorf("entity '%s' not found", q)
	}
	return qnameStrings(reg.Subclasses(q)), nil
}

// ListRelationships 列出所有关系
func (s *SchemaService) ListRelationships() []RelationshipView {
	reg := s.loader.Registry()
	out := make([]RelationshipView, 0)
	for _, q := range reg.RelationshipNames() {
		if v, err := s.relationshipView(q); err == nil {
			out = append(out, *v)
		}
	}
	return out
}

// GetRelationship 查询关系定义
func (s *SchemaService) GetRelationship(name string) (*RelationshipView, error) {
	q, err := s.ResolveName(name)
	if err != nil {
		return nil, err
	}
	return s.relationshipView(q)
}

func (s *SchemaService) relationshipView(q ontology.QName) (*RelationshipView, error) {
	reg := s.loader.Registry()
	rel, err := reg.Relationship(q)
	if err != nil {
		return nil, err
	}
	v := &RelationshipView{
		Name:        q.String(),
		Description: rel.Description,
		Active:      rel.Active,
		Synthetic:   rel.Synthetic,
	}
	for _, sq := range rel.Superclasses {
		v.Superclasses = append(v.Superclasses, sq.String())
	}
	if !rel.Inverse.IsZero() {
		v.Inverse = rel.Inverse.String()
	}
	if rel.Domain != nil {
		v.Domain = rel.Domain.String()
	}
	if rel.Range != nil {
		v.Range = rel.Range.String()
	}
	for c := range rel.Characteristics {
		v.Characteristics = append(v.Characteristics, string(c))
	}
	return v, nil
}

// ListAttributes 列出所有属性
func (s *SchemaService) ListAttributes() []AttributeView {
	reg := s.loader.Registry()
	out := make([]AttributeView, 0)
	for _, q := range reg.AttributeNames() {
		attr, err := reg.Attribute(q)
		if err != nil {
			continue
		}
		v := AttributeView{Name: q.String(), Description: attr.Description, Datatype: attr.Datatype.String()}
		if attr.HasDefault {
			v.Default = attr.Default
		}
		out = append(out, v)
	}
	return out
}

// Reload 重新加载模式文档（整体替换注册表）
func (s *SchemaService) Reload() error {
	return s.loader.Reload()
}

func qnameStrings(qs []ontology.QName) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.String()
	}
	return out
}
