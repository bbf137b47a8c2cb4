package service

import (
	"context"

	"ontograph/internal/graph"
	"ontograph/internal/session"
)

// SyncService 会话同步服务：提交、回滚与回填
type SyncService struct {
	sess *session.Session
}

// NewSyncService 创建会话同步服务
func NewSyncService(sess *session.Session) *SyncService {
	return &SyncService{sess: sess}
}

// PendingView 待提交日志概览
type PendingView struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Deleted []string `json:"deleted"`
}

// Commit 提交待提交日志到后端
func (s *SyncService) Commit(ctx context.Context) error {
	return s.sess.Commit(ctx)
}

// Rollback 丢弃待提交日志，恢复到最近一次提交的形状
func (s *SyncService) Rollback() error {
	return s.sess.Rollback()
}

// Pending 返回待提交日志概览
func (s *SyncService) Pending() *PendingView {
	created, updated, deleted := s.sess.Pending()
	return &PendingView{
		Created: idStrings(created),
		Updated: idStrings(updated),
		Deleted: idStrings(deleted),
	}
}

// Hydrate 从后端拉取节点装入会话区域
func (s *SyncService) Hydrate(ctx context.Context, ids []string) error {
	nodeIDs := make([]graph.NodeID, len(ids))
	for i, id := range ids {
		nodeIDs[i] = graph.NodeID(id)
	}
	return s.sess.Hydrate(ctx, nodeIDs)
}

func idStrings(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
