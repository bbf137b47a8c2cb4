package session

import (
	"context"
	"fmt"

	"ontograph/internal/graph"
)

// Adapter 后端适配器契约。Apply 要么完整应用变更集，要么报告
// 失败且后续 Fetch 观察不到任何部分效果；Fetch 返回的快照必须
// 内部一致（同批快照中不出现悬空的边目标）。
type Adapter interface {
	Apply(ctx context.Context, delta *Delta) error
	Fetch(ctx context.Context, ids []graph.NodeID) (map[graph.NodeID]*NodeState, error)
}

// AdapterError 后端在提交或拉取过程中的失败。
// 会话回滚后原样上抛给调用方，引擎本身从不重试。
type AdapterError struct {
	Op  string // "apply" 或 "fetch"
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter error: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
