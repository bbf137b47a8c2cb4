package ontology

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 加载完成的模式注册表。加载成功后只读；
// 重新加载会整体替换注册表，不是在线修改。
type Registry struct {
	version   string
	namespace string
	root      QName

	classes       map[QName]*Class
	relationships map[QName]*Relationship
	attributes    map[QName]*Attribute
	subclasses    map[QName][]QName // 直接子类索引
}

// Load 从 YAML 字节流加载并验证模式文档
func Load(data []byte) (*Registry, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return NewValidator(doc).Validate()
}

// Version 返回文档版本
func (r *Registry) Version() string { return r.version }

// Namespace 返回规范化后的命名空间
func (r *Registry) Namespace() string { return r.namespace }

// Root 返回唯一的通用根实体
func (r *Registry) Root() QName { return r.root }

// Class 查找类实体
func (r *Registry) Class(q QName) (*Class, error) {
	if c, ok := r.classes[q]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("class '%s' not found", q)
}

// Relationship 查找关系实体
func (r *Registry) Relationship(q QName) (*Relationship, error) {
	if rel, ok := r.relationships[q]; ok {
		return rel, nil
	}
	return nil, fmt.Errorf("relationship '%s' not found", q)
}

// Attribute 查找属性实体
func (r *Registry) Attribute(q QName) (*Attribute, error) {
	if a, ok := r.attributes[q]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("attribute '%s' not found", q)
}

// entityKind 返回实体种类，未声明返回空串
func (r *Registry) entityKind(q QName) Kind {
	if _, ok := r.classes[q]; ok {
		return KindClass
	}
	if _, ok := r.relationships[q]; ok {
		return KindRelationship
	}
	if _, ok := r.attributes[q]; ok {
		return KindAttribute
	}
	return ""
}

// HasEntity 判断限定名是否为已声明实体
func (r *Registry) HasEntity(q QName) bool {
	return r.entityKind(q) != ""
}

func (r *Registry) directSupers(q QName) []QName {
	if c, ok := r.classes[q]; ok {
		return c.Superclasses
	}
	if rel, ok := r.relationships[q]; ok {
		return rel.Superclasses
	}
	if a, ok := r.attributes[q]; ok {
		return a.Superclasses
	}
	return nil
}

// allNames 返回所有实体限定名（排序保证确定性）
func (r *Registry) allNames() []QName {
	out := make([]QName, 0, len(r.classes)+len(r.relationships)+len(r.attributes))
	for q := range r.classes {
		out = append(out, q)
	}
	for q := range r.relationships {
		out = append(out, q)
	}
	for q := range r.attributes {
		out = append(out, q)
	}
	sortQNames(out)
	return out
}

// relationshipNames 返回所有关系限定名（排序保证确定性）
func (r *Registry) relationshipNames() []QName {
	out := make([]QName, 0, len(r.relationships))
	for q := range r.relationships {
		out = append(out, q)
	}
	sortQNames(out)
	return out
}

// ClassNames 返回所有类限定名（排序保证确定性）
func (r *Registry) ClassNames() []QName {
	out := make([]QName, 0, len(r.classes))
	for q := range r.classes {
		out = append(out, q)
	}
	sortQNames(out)
	return out
}

// RelationshipNames 返回所有关系限定名
func (r *Registry) RelationshipNames() []QName {
	return r.relationshipNames()
}

// AttributeNames 返回所有属性限定名（排序保证确定性）
func (r *Registry) AttributeNames() []QName {
	out := make([]QName, 0, len(r.attributes))
	for q := range r.attributes {
		out = append(out, q)
	}
	sortQNames(out)
	return out
}

func sortQNames(qs []QName) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].Namespace != qs[j].Namespace {
			return qs[i].Namespace < qs[j].Namespace
		}
		return qs[i].Name < qs[j].Name
	})
}

// relationshipRoot 返回关系根：父类中不含关系的那个关系
func (r *Registry) relationshipRoot() QName {
	for _, q := range r.relationshipNames() {
		rel := r.relationships[q]
		isRoot := true
		for _, sq := range rel.Superclasses {
			if _, ok := r.relationships[sq]; ok {
				isRoot = false
				break
			}
		}
		if isRoot {
			return q
		}
	}
	return QName{}
}

// Superclasses 返回传递闭包意义上的所有父类（不含自身），宽度优先
func (r *Registry) Superclasses(q QName) []QName {
	var out []QName
	seen := map[QName]bool{q: true}
	queue := append([]QName(nil), r.directSupers(q)...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, r.directSupers(cur)...)
	}
	return out
}

// Subclasses 返回传递闭包意义上的所有子类（不含自身）
func (r *Registry) Subclasses(q QName) []QName {
	var out []QName
	seen := map[QName]bool{q: true}
	queue := append([]QName(nil), r.subclasses[q]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, r.subclasses[cur]...)
	}
	return out
}

// IsA 判断 x 是否为 y（自反、传递）
func (r *Registry) IsA(x, y QName) bool {
	if x == y {
		return r.HasEntity(x)
	}
	for _, sq := range r.Superclasses(x) {
		if sq == y {
			return true
		}
	}
	return false
}

// AttributeSpec 类的一条适用属性（已沿父链合并）
type AttributeSpec struct {
	Attribute  *Attribute
	Default    any
	HasDefault bool
}

// AttributesOf 返回类的全部适用属性：沿父类链传递合并，
// 冲突时更具体的默认值优先。
func (r *Registry) AttributesOf(class QName) (map[QName]*AttributeSpec, error) {
	if _, ok := r.classes[class]; !ok {
		return nil, fmt.Errorf("class '%s' not found", class)
	}
	out := make(map[QName]*AttributeSpec)
	chain := append([]QName{class}, r.Superclasses(class)...)
	for _, cq := range chain {
		cls, ok := r.classes[cq]
		if !ok {
			continue
		}
		for aq, binding := range cls.Attributes {
			if _, done := out[aq]; done {
				continue // 更具体的声明已覆盖
			}
			attr := r.attributes[aq]
			spec := &AttributeSpec{Attribute: attr}
			switch {
			case binding.HasDefault:
				spec.Default = binding.Default
				spec.HasDefault = true
			case attr.HasDefault:
				spec.Default = attr.Default
				spec.HasDefault = true
			}
			out[aq] = spec
		}
	}
	return out, nil
}

// RestrictionsOf 返回类自身及继承的全部约束（自身的在前）
func (r *Registry) RestrictionsOf(class QName) []*Restriction {
	var out []*Restriction
	chain := append([]QName{class}, r.Superclasses(class)...)
	for _, cq := range chain {
		if cls, ok := r.classes[cq]; ok {
			out = append(out, cls.Restrictions...)
		}
	}
	return out
}

// InverseOf 返回关系的反向关系
func (r *Registry) InverseOf(q QName) (QName, error) {
	rel, err := r.Relationship(q)
	if err != nil {
		return QName{}, err
	}
	if rel.Inverse.IsZero() {
		return QName{}, fmt.Errorf("relationship '%s' has no inverse", q)
	}
	return rel.Inverse, nil
}

// IsActive 判断关系是否属于主动（包含）划分
func (r *Registry) IsActive(q QName) bool {
	if rel, ok := r.relationships[q]; ok {
		return rel.Active
	}
	return false
}

// Loader 模式加载器。持有当前注册表，支持整体热替换。
type Loader struct {
	parse func() (*Document, error)
	reg   *Registry
	mu    sync.RWMutex
}

// NewLoader 创建基于文件的加载器
func NewLoader(filePath string) *Loader {
	p := NewParser(filePath)
	return &Loader{parse: p.Parse}
}

// NewLoaderBytes 创建基于内存文档的加载器（测试用）
func NewLoaderBytes(data []byte) *Loader {
	return &Loader{parse: func() (*Document, error) { return ParseDocument(data) }}
}

// Load 加载并验证模式，成功后替换当前注册表
func (l *Loader) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.parse()
	if err != nil {
		return fmt.Errorf("schema load failed: %w", err)
	}
	reg, err := NewValidator(doc).Validate()
	if err != nil {
		return fmt.Errorf("schema load failed: %w", err)
	}
	l.reg = reg
	return nil
}

// Registry 返回当前注册表
func (l *Loader) Registry() *Registry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg
}

// Reload 重新加载模式（整体替换，失败时保留旧注册表）
func (l *Loader) Reload() error {
	return l.Load()
}
