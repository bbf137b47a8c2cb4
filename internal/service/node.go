package service

import (
	"fmt"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

// NodeService 实例节点服务。所有变更都显式通过会话句柄执行。
type NodeService struct {
	sess   *session.Session
	loader *ontology.Loader
}

// NewNodeService 创建实例节点服务
func NewNodeService(sess *session.Session, loader *ontology.Loader) *NodeService {
	return &NodeService{sess: sess, loader: loader}
}

// NodeView 节点的对外视图
type NodeView struct {
	ID         string              `json:"id"`
	Classes    []string            `json:"classes"`
	Attributes map[string]any      `json:"attributes,omitempty"`
	Edges      map[string][]string `json:"edges,omitempty"`
}

func (s *NodeService) resolve(name string) (ontology.QName, error) {
	return ontology.ParseQName(name, s.loader.Registry().Namespace())
}

// CreateNode 依据类名实例化节点
func (s *NodeService) CreateNode(classNames []string, attrs map[string]any) (string, error) {
	if len(classNames) == 0 {
		return "", fmt.Errorf("at least one class is required")
	}
	reg := s.loader.Registry()
	classes := make([]ontology.QName, 0, len(classNames))
	for _, name := range classNames {
		q, err := s.resolve(name)
		if err != nil {
			return "", err
		}
		if _, err := reg.Class(q); err != nil {
			return "", err
		}
		classes = append(classes, q)
	}
	values, err := s.resolveAttrs(attrs)
	if err != nil {
		return "", err
	}
	id, err := s.sess.Create(classes, values)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (s *NodeService) resolveAttrs(attrs map[string]any) (map[ontology.QName]any, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	out := make(map[ontology.QName]any, len(attrs))
	for name, v := range attrs {
		q, err := s.resolve(name)
		if err != nil {
			return nil, err
		}
		out[q] = v
	}
	return out, nil
}

// GetNode 读取节点
func (s *NodeService) GetNode(id string) (*NodeView, error) {
	node, err := s.sess.Get(graph.NodeID(id))
	if err != nil {
		return nil, err
	}
	return nodeView(node), nil
}

// SetAttributes 设置节点属性
func (s *NodeService) SetAttributes(id string, attrs map[string]any) error {
	values, err := s.resolveAttrs(attrs)
	if err != nil {
		return err
	}
	for q, v := range values {
		if err := s.sess.SetAttribute(graph.NodeID(id), q, v); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNode 删除节点（浅删除）
func (s *NodeService) DeleteNode(id string) error {
	return s.sess.Remove(graph.NodeID(id))
}

// IsA 判断节点是否属于某类
func (s *NodeService) IsA(id, class string) (bool, error) {
	q, err := s.resolve(class)
	if err != nil {
		return false, err
	}
	return s.sess.IsA(graph.NodeID(id), q)
}

// ListNodes 列出会话跟踪的节点（分页）
func (s *NodeService) ListNodes(offset, limit int) ([]*NodeView, int, error) {
	ids := s.sess.Tracked()
	total := len(ids)
	if offset >= total {
		return []*NodeView{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*NodeView, 0, end-offset)
	for _, id := range ids[offset:end] {
		node, err := s.sess.Get(id)
		if err != nil {
			continue
		}
		out = append(out, nodeView(node))
	}
	return out, total, nil
}

func nodeView(n *graph.Node) *NodeView {
	v := &NodeView{ID: string(n.ID)}
	for _, cq := range n.Classes {
		v.Classes = append(v.Classes, cq.String())
	}
	if len(n.Attributes) > 0 {
		v.Attributes = make(map[string]any, len(n.Attributes))
		for aq, val := range n.Attributes {
			v.Attributes[aq.String()] = val
		}
	}
	if len(n.Edges) > 0 {
		v.Edges = make(map[string][]string, len(n.Edges))
		for rel := range n.Edges {
			targets := n.Targets(rel)
			strs := make([]string, len(targets))
			for i, t := range targets {
				strs[i] = string(t)
			}
			v.Edges[rel.String()] = strs
		}
	}
	return v
}
