package ontology

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind 本体实体的种类
type Kind string

const (
	KindClass        Kind = "class"
	KindRelationship Kind = "relationship"
	KindAttribute    Kind = "attribute"
)

// QName 限定名（命名空间 + 本地名，统一为大写下划线形式）
type QName struct {
	Namespace string
	Name      string
}

// String 返回 "NAMESPACE.NAME" 形式
func (q QName) String() string {
	return q.Namespace + "." + q.Name
}

// IsZero 判断是否为空限定名
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Name == ""
}

// MarshalText 序列化为 "NAMESPACE.NAME"，使限定名可作 JSON 映射键
func (q QName) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText 反序列化限定名
func (q *QName) UnmarshalText(text []byte) error {
	parsed, err := ParseQName(string(text), "")
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQName 解析 "ns.name" 形式的引用；缺省命名空间时使用 fallback
func ParseQName(s, fallback string) (QName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QName{}, fmt.Errorf("empty entity reference")
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) == 2 {
		if parts[0] == "" || parts[1] == "" {
			return QName{}, fmt.Errorf("invalid entity reference '%s'", s)
		}
		return QName{Namespace: normalizeName(parts[0]), Name: normalizeName(parts[1])}, nil
	}
	if fallback == "" {
		return QName{}, fmt.Errorf("entity reference '%s' has no namespace", s)
	}
	return QName{Namespace: normalizeName(fallback), Name: normalizeName(s)}, nil
}

// normalizeName 名称规范化：驼峰转下划线并统一大写（hasPart -> HAS_PART）
func normalizeName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Entity 实体公共部分（加载完成后不可变）
type Entity struct {
	Name         QName
	Kind         Kind
	Description  string
	Superclasses []QName // 直接父类
}

// Class 类实体
type Class struct {
	Entity
	Attributes   map[QName]*AttributeBinding // 适用属性及默认值
	Restrictions []*Restriction
	DisjointWith []*Expression
	EquivalentTo []*Expression
}

// AttributeBinding 类上的属性声明（可携带默认值覆盖）
type AttributeBinding struct {
	Attribute  QName
	Default    any
	HasDefault bool
}

// Characteristic 关系特征
type Characteristic string

const (
	Reflexive         Characteristic = "reflexive"
	Symmetric         Characteristic = "symmetric"
	Transitive        Characteristic = "transitive"
	Functional        Characteristic = "functional"
	Irreflexive       Characteristic = "irreflexive"
	Asymmetric        Characteristic = "asymmetric"
	InverseFunctional Characteristic = "inverse-functional"
)

// Relationship 关系实体
type Relationship struct {
	Entity
	Inverse         QName
	Domain          *Expression
	Range           *Expression
	Characteristics map[Characteristic]bool
	// Active 主动关系标记（包含语义），加载时根据声明与继承计算
	Active bool
	// Synthetic 表示该关系为自动合成的反向关系
	Synthetic bool
}

// HasCharacteristic 判断关系是否具有某特征
func (r *Relationship) HasCharacteristic(c Characteristic) bool {
	return r.Characteristics[c]
}

// Attribute 属性实体
type Attribute struct {
	Entity
	Datatype   *Datatype
	Default    any
	HasDefault bool
}
