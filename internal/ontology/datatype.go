package ontology

import (
	"fmt"
	"strconv"
	"strings"
)

// DatatypeKind 属性数据类型标签
type DatatypeKind string

const (
	TypeBool   DatatypeKind = "bool"
	TypeInt    DatatypeKind = "int"
	TypeFloat  DatatypeKind = "float"
	TypeString DatatypeKind = "string"
	TypeVector DatatypeKind = "vector"
)

// Datatype 属性数据类型（string 可限制最大长度，vector 带维度列表）
type Datatype struct {
	Kind       DatatypeKind
	MaxLength  int   // string 专用，0 表示不限
	Dimensions []int // vector 专用
}

// String 返回声明形式，如 "string(120)"、"vector(2,3)"
func (d *Datatype) String() string {
	switch d.Kind {
	case TypeString:
		if d.MaxLength > 0 {
			return fmt.Sprintf("string(%d)", d.MaxLength)
		}
	case TypeVector:
		dims := make([]string, len(d.Dimensions))
		for i, n := range d.Dimensions {
			dims[i] = strconv.Itoa(n)
		}
		return fmt.Sprintf("vector(%s)", strings.Join(dims, ","))
	}
	return string(d.Kind)
}

// ParseDatatype 解析数据类型声明
func ParseDatatype(s string) (*Datatype, error) {
	s = strings.TrimSpace(s)
	base := s
	var args []string
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return nil, fmt.Errorf("invalid datatype '%s'", s)
		}
		base = s[:i]
		inner := strings.TrimSuffix(s[i+1:], ")")
		if inner != "" {
			args = strings.Split(inner, ",")
		}
	}

	switch DatatypeKind(base) {
	case TypeBool, TypeInt, TypeFloat:
		if len(args) > 0 {
			return nil, fmt.Errorf("datatype '%s' takes no arguments", base)
		}
		return &Datatype{Kind: DatatypeKind(base)}, nil
	case TypeString:
		dt := &Datatype{Kind: TypeString}
		if len(args) > 1 {
			return nil, fmt.Errorf("invalid string datatype '%s'", s)
		}
		if len(args) == 1 {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid string length in '%s'", s)
			}
			dt.MaxLength = n
		}
		return dt, nil
	case TypeVector:
		if len(args) == 0 {
			return nil, fmt.Errorf("vector datatype requires dimensions")
		}
		dt := &Datatype{Kind: TypeVector}
		for _, a := range args {
			n, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid vector dimension in '%s'", s)
			}
			dt.Dimensions = append(dt.Dimensions, n)
		}
		return dt, nil
	}
	return nil, fmt.Errorf("unknown datatype '%s'", s)
}

// Normalize 校验并归一化属性值。所有模式下都会执行该检查。
// 归一化后的内部表示：bool、int64、float64、string、[]float64。
func (d *Datatype) Normalize(value any) (any, error) {
	switch d.Kind {
	case TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			// JSON 解码产生的整数是 float64
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeString:
		if v, ok := value.(string); ok {
			if d.MaxLength > 0 && len([]rune(v)) > d.MaxLength {
				return nil, fmt.Errorf("string exceeds max length %d", d.MaxLength)
			}
			return v, nil
		}
	case TypeVector:
		elems, ok := toFloatSlice(value)
		if !ok {
			break
		}
		want := 1
		for _, n := range d.Dimensions {
			want *= n
		}
		if len(elems) != want {
			return nil, fmt.Errorf("vector has %d elements, want %d", len(elems), want)
		}
		return elems, nil
	}
	return nil, fmt.Errorf("value %v is not a valid %s", value, d.String())
}

func toFloatSlice(value any) ([]float64, bool) {
	switch v := value.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
