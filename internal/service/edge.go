package service

import (
	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

// EdgeService 边服务。加边与删边总是成对维护正反两个方向。
type EdgeService struct {
	sess   *session.Session
	loader *ontology.Loader
}

// NewEdgeService 创建边服务
func NewEdgeService(sess *session.Session, loader *ontology.Loader) *EdgeService {
	return &EdgeService{sess: sess, loader: loader}
}

func (s *EdgeService) resolveRelationship(name string) (ontology.QName, error) {
	q, err := ontology.ParseQName(name, s.loader.Registry().Namespace())
	if err != nil {
		return ontology.QName{}, err
	}
	if _, err := s.loader.Registry().Relationship(q); err != nil {
		return ontology.QName{}, err
	}
	return q, nil
}

// AddEdge 安装 (subject, rel, object) 及其反向边
func (s *EdgeService) AddEdge(subject, relationship, object string) error {
	rel, err := s.resolveRelationship(relationship)
	if err != nil {
		return err
	}
	return s.sess.AddEdge(graph.NodeID(subject), rel, graph.NodeID(object))
}

// RemoveEdge 移除 (subject, rel, object) 及其反向边
func (s *EdgeService) RemoveEdge(subject, relationship, object string) error {
	rel, err := s.resolveRelationship(relationship)
	if err != nil {
		return err
	}
	return s.sess.RemoveEdge(graph.NodeID(subject), rel, graph.NodeID(object))
}

// Neighbors 查询节点沿某关系的邻居
func (s *EdgeService) Neighbors(id, relationship string) ([]string, error) {
	rel, err := s.resolveRelationship(relationship)
	if err != nil {
		return nil, err
	}
	ids, err := s.sess.Neighbors(graph.NodeID(id), rel)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, t := range ids {
		out[i] = string(t)
	}
	return out, nil
}
