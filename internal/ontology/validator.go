package ontology

import (
	"regexp"
)

// Validator 模式文档验证器。验证通过后产出不可变 Registry；
// 任一违规都会携带出错实体与规则返回 SchemaError。
type Validator struct {
	doc *Document
	reg *Registry
}

// NewValidator 创建新的验证器
func NewValidator(doc *Document) *Validator {
	return &Validator{doc: doc}
}

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

var validCharacteristics = map[Characteristic]bool{
	Reflexive:         true,
	Symmetric:         true,
	Transitive:        true,
	Functional:        true,
	Irreflexive:       true,
	Asymmetric:        true,
	InverseFunctional: true,
}

// Validate 验证并构建 Registry
func (v *Validator) Validate() (*Registry, error) {
	if v.doc.Namespace == "" {
		return nil, schemaErrf("", "namespace is required")
	}
	if !namePattern.MatchString(v.doc.Namespace) {
		return nil, schemaErrf("", "invalid namespace '%s'", v.doc.Namespace)
	}

	v.reg = &Registry{
		version:       v.doc.Version,
		namespace:     normalizeName(v.doc.Namespace),
		classes:       make(map[QName]*Class),
		relationships: make(map[QName]*Relationship),
		attributes:    make(map[QName]*Attribute),
		subclasses:    make(map[QName][]QName),
	}

	if err := v.collectEntities(); err != nil {
		return nil, err
	}
	if err := v.resolveHierarchy(); err != nil {
		return nil, err
	}
	if err := v.resolveInverses(); err != nil {
		return nil, err
	}
	if err := v.resolveActivePartition(); err != nil {
		return nil, err
	}
	if err := v.resolveExpressions(); err != nil {
		return nil, err
	}
	if err := v.checkDefaults(); err != nil {
		return nil, err
	}
	v.indexSubclasses()
	return v.reg, nil
}

// collectEntities 第一遍：收集所有实体并检查重名与名称格式
func (v *Validator) collectEntities() error {
	ns := v.reg.namespace
	seen := make(map[QName]bool)

	register := func(name string, kind Kind) (QName, error) {
		if name == "" {
			return QName{}, schemaErrf("", "%s with empty name", kind)
		}
		if !namePattern.MatchString(name) {
			return QName{}, schemaErrf(name, "invalid entity name")
		}
		q := QName{Namespace: ns, Name: normalizeName(name)}
		if seen[q] {
			return QName{}, schemaErrf(q.String(), "duplicate qualified name")
		}
		seen[q] = true
		return q, nil
	}

	for _, def := range v.doc.Classes {
		q, err := register(def.Name, KindClass)
		if err != nil {
			return err
		}
		v.reg.classes[q] = &Class{
			Entity: Entity{Name: q, Kind: KindClass, Description: def.Description},
		}
	}
	for _, def := range v.doc.Relationships {
		q, err := register(def.Name, KindRelationship)
		if err != nil {
			return err
		}
		chars := make(map[Characteristic]bool)
		for _, c := range def.Characteristics {
			ch := Characteristic(c)
			if !validCharacteristics[ch] {
				return schemaErrf(q.String(), "unknown characteristic '%s'", c)
			}
			chars[ch] = true
		}
		v.reg.relationships[q] = &Relationship{
			Entity:          Entity{Name: q, Kind: KindRelationship, Description: def.Description},
			Characteristics: chars,
		}
	}
	for _, def := range v.doc.Attributes {
		q, err := register(def.Name, KindAttribute)
		if err != nil {
			return err
		}
		if def.Datatype == "" {
			return schemaErrf(q.String(), "datatype is required")
		}
		dt, err := ParseDatatype(def.Datatype)
		if err != nil {
			return schemaErrf(q.String(), "%v", err)
		}
		v.reg.attributes[q] = &Attribute{
			Entity:   Entity{Name: q, Kind: KindAttribute, Description: def.Description},
			Datatype: dt,
		}
	}
	return nil
}

// resolveHierarchy 解析父类引用：引用可解析、种类兼容、
// 恰好一个根实体、父类图无环
func (v *Validator) resolveHierarchy() error {
	resolve := func(q QName, refs []string) ([]QName, error) {
		supers := make([]QName, 0, len(refs))
		for _, ref := range refs {
			sq, err := ParseQName(ref, v.reg.namespace)
			if err != nil {
				return nil, schemaErrf(q.String(), "%v", err)
			}
			if v.reg.entityKind(sq) == "" {
				return nil, schemaErrf(q.String(), "superclass '%s' does not exist", sq)
			}
			supers = append(supers, sq)
		}
		return supers, nil
	}

	var roots []QName

	for _, def := range v.doc.Classes {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		supers, err := resolve(q, def.Superclasses)
		if err != nil {
			return err
		}
		for _, sq := range supers {
			if v.reg.entityKind(sq) != KindClass {
				return schemaErrf(q.String(), "class superclass '%s' is not a class", sq)
			}
		}
		v.reg.classes[q].Superclasses = supers
		if len(supers) == 0 {
			roots = append(roots, q)
		}
	}
	for _, def := range v.doc.Relationships {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		supers, err := resolve(q, def.Superclasses)
		if err != nil {
			return err
		}
		v.reg.relationships[q].Superclasses = supers
		if len(supers) == 0 {
			roots = append(roots, q)
		}
	}
	for _, def := range v.doc.Attributes {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		supers, err := resolve(q, def.Superclasses)
		if err != nil {
			return err
		}
		v.reg.attributes[q].Superclasses = supers
		if len(supers) == 0 {
			roots = append(roots, q)
		}
	}

	if len(roots) == 0 {
		return schemaErrf("", "no root entity: exactly one entity must have no superclass")
	}
	if len(roots) > 1 {
		return schemaErrf(roots[1].String(), "multiple root entities: '%s' and '%s' both lack a superclass", roots[0], roots[1])
	}
	v.reg.root = roots[0]

	// 非根实体的种类必须与父类兼容（或直接挂在通用根下）
	for q, r := range v.reg.relationships {
		for _, sq := range r.Superclasses {
			if k := v.reg.entityKind(sq); k != KindRelationship && sq != v.reg.root {
				return schemaErrf(q.String(), "relationship superclass '%s' is not a relationship", sq)
			}
		}
	}
	for q, a := range v.reg.attributes {
		for _, sq := range a.Superclasses {
			if k := v.reg.entityKind(sq); k != KindAttribute && sq != v.reg.root {
				return schemaErrf(q.String(), "attribute superclass '%s' is not an attribute", sq)
			}
		}
	}

	// 父类图无环：带染色的 DFS
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[QName]int)
	var visit func(q QName) *SchemaError
	visit = func(q QName) *SchemaError {
		switch color[q] {
		case gray:
			return schemaErrf(q.String(), "cycle in superclass graph")
		case black:
			return nil
		}
		color[q] = gray
		for _, sq := range v.reg.directSupers(q) {
			if err := visit(sq); err != nil {
				return err
			}
		}
		color[q] = black
		return nil
	}
	for _, q := range v.reg.allNames() {
		if err := visit(q); err != nil {
			return err
		}
	}
	return nil
}

// resolveInverses 解析反向关系。除关系根外每个关系都要有可解析的
// 反向关系；文档未声明时自动合成 INVERSE_OF_<NAME>。
func (v *Validator) resolveInverses() error {
	relRoot := v.reg.relationshipRoot()

	for _, def := range v.doc.Relationships {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		if def.Inverse == "" {
			continue
		}
		iq, err := ParseQName(def.Inverse, v.reg.namespace)
		if err != nil {
			return schemaErrf(q.String(), "%v", err)
		}
		inv, ok := v.reg.relationships[iq]
		if !ok {
			return schemaErrf(q.String(), "inverse '%s' is not a declared relationship", iq)
		}
		rel := v.reg.relationships[q]
		if !rel.Inverse.IsZero() && rel.Inverse != iq {
			return schemaErrf(q.String(), "already pairs with '%s', cannot also pair with '%s'", rel.Inverse, iq)
		}
		if !inv.Inverse.IsZero() && inv.Inverse != q {
			return schemaErrf(q.String(), "inverse '%s' already pairs with '%s'", iq, inv.Inverse)
		}
		rel.Inverse = iq
		inv.Inverse = q
	}

	// 合成缺失的反向关系
	for _, q := range v.reg.relationshipNames() {
		rel := v.reg.relationships[q]
		if !rel.Inverse.IsZero() || q == relRoot {
			continue
		}
		iq := QName{Namespace: q.Namespace, Name: "INVERSE_OF_" + q.Name}
		if v.reg.entityKind(iq) != "" {
			return schemaErrf(q.String(), "cannot synthesize inverse: '%s' already exists", iq)
		}
		supers := []QName{}
		if !relRoot.IsZero() {
			supers = append(supers, relRoot)
		}
		v.reg.relationships[iq] = &Relationship{
			Entity: Entity{
				Name:         iq,
				Kind:         KindRelationship,
				Description:  "synthesized inverse of " + q.String(),
				Superclasses: supers,
			},
			Inverse:         q,
			Characteristics: map[Characteristic]bool{},
			Synthetic:       true,
		}
		rel.Inverse = iq
	}
	return nil
}

// resolveActivePartition 计算主/被动划分：显式声明优先，
// 否则沿父链继承，默认被动。主动关系的反向必须是被动的。
func (v *Validator) resolveActivePartition() error {
	declared := make(map[QName]*bool)
	for _, def := range v.doc.Relationships {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		declared[q] = def.Active
	}

	memo := make(map[QName]int) // 0 未算, 1 主动, 2 被动
	var active func(q QName) bool
	active = func(q QName) bool {
		switch memo[q] {
		case 1:
			return true
		case 2:
			return false
		}
		memo[q] = 2
		result := false
		if d := declared[q]; d != nil {
			result = *d
		} else {
			for _, sq := range v.reg.relationships[q].Superclasses {
				if _, ok := v.reg.relationships[sq]; ok && active(sq) {
					result = true
					break
				}
			}
		}
		if result {
			memo[q] = 1
		}
		return result
	}

	for _, q := range v.reg.relationshipNames() {
		v.reg.relationships[q].Active = active(q)
	}
	for _, q := range v.reg.relationshipNames() {
		rel := v.reg.relationships[q]
		if rel.Active && !rel.Inverse.IsZero() && v.reg.relationships[rel.Inverse].Active {
			return schemaErrf(q.String(), "relationship and its inverse '%s' are both active", rel.Inverse)
		}
	}
	return nil
}

// resolveExpressions 解析所有类表达式与约束，检查引用可解析
func (v *Validator) resolveExpressions() error {
	for _, def := range v.doc.Classes {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		cls := v.reg.classes[q]
		for _, rd := range def.Restrictions {
			r, err := v.buildRestriction(q, &rd)
			if err != nil {
				return err
			}
			cls.Restrictions = append(cls.Restrictions, r)
		}
		for _, ed := range def.DisjointWith {
			e, err := v.buildExpression(q, &ed)
			if err != nil {
				return err
			}
			cls.DisjointWith = append(cls.DisjointWith, e)
		}
		for _, ed := range def.EquivalentTo {
			e, err := v.buildExpression(q, &ed)
			if err != nil {
				return err
			}
			cls.EquivalentTo = append(cls.EquivalentTo, e)
		}
	}
	for _, def := range v.doc.Relationships {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		rel := v.reg.relationships[q]
		if def.Domain != nil {
			e, err := v.buildExpression(q, def.Domain)
			if err != nil {
				return err
			}
			rel.Domain = e
		}
		if def.Range != nil {
			e, err := v.buildExpression(q, def.Range)
			if err != nil {
				return err
			}
			rel.Range = e
		}
		// 合成反向关系的定义域/值域互换
		if inv, ok := v.reg.relationships[rel.Inverse]; ok && inv.Synthetic {
			inv.Domain = rel.Range
			inv.Range = rel.Domain
		}
	}
	return nil
}

func (v *Validator) buildExpression(owner QName, def *ExpressionDef) (*Expression, error) {
	switch {
	case def.Ref != "":
		q, err := ParseQName(def.Ref, v.reg.namespace)
		if err != nil {
			return nil, schemaErrf(owner.String(), "%v", err)
		}
		if _, ok := v.reg.classes[q]; !ok {
			return nil, schemaErrf(owner.String(), "class expression references unknown class '%s'", q)
		}
		return &Expression{Ref: q}, nil
	case def.Restriction != nil:
		r, err := v.buildRestriction(owner, def.Restriction)
		if err != nil {
			return nil, err
		}
		return &Expression{Restriction: r}, nil
	case def.Not != nil:
		inner, err := v.buildExpression(owner, def.Not)
		if err != nil {
			return nil, err
		}
		return &Expression{Not: inner}, nil
	case len(def.And) > 0:
		parts, err := v.buildExpressions(owner, def.And)
		if err != nil {
			return nil, err
		}
		return &Expression{And: parts}, nil
	case len(def.Or) > 0:
		parts, err := v.buildExpressions(owner, def.Or)
		if err != nil {
			return nil, err
		}
		return &Expression{Or: parts}, nil
	}
	return nil, schemaErrf(owner.String(), "empty class expression")
}

func (v *Validator) buildExpressions(owner QName, defs []ExpressionDef) ([]*Expression, error) {
	out := make([]*Expression, 0, len(defs))
	for i := range defs {
		e, err := v.buildExpression(owner, &defs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (v *Validator) buildRestriction(owner QName, def *RestrictionDef) (*Restriction, error) {
	if def.Relationship == "" {
		return nil, schemaErrf(owner.String(), "restriction without relationship")
	}
	rq, err := ParseQName(def.Relationship, v.reg.namespace)
	if err != nil {
		return nil, schemaErrf(owner.String(), "%v", err)
	}
	if _, ok := v.reg.relationships[rq]; !ok {
		return nil, schemaErrf(owner.String(), "restriction references unknown relationship '%s'", rq)
	}
	if def.Min < 0 {
		return nil, schemaErrf(owner.String(), "restriction on '%s': min must be >= 0", rq)
	}
	max := Unbounded
	if def.Max != nil {
		max = *def.Max
		if max < def.Min {
			return nil, schemaErrf(owner.String(), "restriction on '%s': max must be >= min", rq)
		}
	}
	r := &Restriction{Relationship: rq, Min: def.Min, Max: max, Exclusive: def.Exclusive}
	if def.Target != nil {
		t, err := v.buildExpression(owner, def.Target)
		if err != nil {
			return nil, err
		}
		r.Target = t
	}
	return r, nil
}

// checkDefaults 检查属性默认值与类上的默认值覆盖是否类型一致
func (v *Validator) checkDefaults() error {
	for _, def := range v.doc.Attributes {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		attr := v.reg.attributes[q]
		if !def.HasDefault {
			continue
		}
		val, err := attr.Datatype.Normalize(def.Default)
		if err != nil {
			return schemaErrf(q.String(), "default value: %v", err)
		}
		attr.Default = val
		attr.HasDefault = true
	}

	for _, def := range v.doc.Classes {
		q := QName{Namespace: v.reg.namespace, Name: normalizeName(def.Name)}
		cls := v.reg.classes[q]
		if len(def.Attributes) == 0 {
			continue
		}
		cls.Attributes = make(map[QName]*AttributeBinding, len(def.Attributes))
		for ref, dv := range def.Attributes {
			aq, err := ParseQName(ref, v.reg.namespace)
			if err != nil {
				return schemaErrf(q.String(), "%v", err)
			}
			attr, ok := v.reg.attributes[aq]
			if !ok {
				return schemaErrf(q.String(), "attribute '%s' does not exist", aq)
			}
			b := &AttributeBinding{Attribute: aq}
			if dv != nil {
				val, err := attr.Datatype.Normalize(dv)
				if err != nil {
					return schemaErrf(q.String(), "default for '%s': %v", aq, err)
				}
				b.Default = val
				b.HasDefault = true
			}
			cls.Attributes[aq] = b
		}
	}
	return nil
}

// indexSubclasses 建立直接子类索引，供层级查询使用
func (v *Validator) indexSubclasses() {
	for _, q := range v.reg.allNames() {
		for _, sq := range v.reg.directSupers(q) {
			v.reg.subclasses[sq] = append(v.reg.subclasses[sq], q)
		}
	}
}
