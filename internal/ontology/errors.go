package ontology

import "fmt"

// SchemaError 模式文档错误。加载过程中发现任一违规即整体失败，
// 不会安装部分模式。
type SchemaError struct {
	Entity string // 出错实体的限定名，可为空
	Rule   string // 被违反的规则描述
}

func (e *SchemaError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("schema error: %s", e.Rule)
	}
	return fmt.Sprintf("schema error: entity '%s': %s", e.Entity, e.Rule)
}

func schemaErrf(entity, format string, args ...any) *SchemaError {
	return &SchemaError{Entity: entity, Rule: fmt.Sprintf(format, args...)}
}

// DatatypeError 属性值与声明数据类型不兼容。
// 任何一致性模式下都在赋值时拒绝。
type DatatypeError struct {
	Attribute QName
	Err       error
}

func (e *DatatypeError) Error() string {
	return fmt.Sprintf("datatype error: attribute '%s': %v", e.Attribute, e.Err)
}

func (e *DatatypeError) Unwrap() error {
	return e.Err
}
