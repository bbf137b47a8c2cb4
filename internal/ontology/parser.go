package ontology

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parser 模式文档解析器
type Parser struct {
	filePath string
}

// NewParser 创建新的解析器
func NewParser(filePath string) *Parser {
	return &Parser{filePath: filePath}
}

// Parse 读取并解析 YAML 文件
func (p *Parser) Parse() (*Document, error) {
	data, err := os.ReadFile(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema document: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument 解析 YAML 字节流。未识别的字段与重复键
// 都视为加载期 SchemaError。
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &SchemaError{Rule: fmt.Sprintf("malformed document: %v", err)}
	}
	return &doc, nil
}
