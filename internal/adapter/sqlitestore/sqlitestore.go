// Package sqlitestore 提供基于 SQLite 的后端适配器。
// 一个变更集在单个数据库事务内应用，天然满足适配器契约的
// 全有或全无要求。
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	classes    TEXT NOT NULL,
	attributes TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	src TEXT NOT NULL,
	rel TEXT NOT NULL,
	dst TEXT NOT NULL,
	PRIMARY KEY (src, rel, dst)
);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst);
`

// Store SQLite 后端
type Store struct {
	db *sql.DB
}

var _ session.Adapter = (*Store)(nil)

// Open 打开（必要时初始化）数据库
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc 驱动要求单写连接
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库
func (st *Store) Close() error {
	return st.db.Close()
}

func encodeNode(s *session.NodeState) (classes, attrs string, err error) {
	cb, err := json.Marshal(s.Classes)
	if err != nil {
		return "", "", fmt.Errorf("encode classes: %w", err)
	}
	a := s.Attributes
	if a == nil {
		a = map[ontology.QName]any{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(cb), string(ab), nil
}

// Apply 在单个事务内应用变更集；任何失败都会整体回滚
func (st *Store) Apply(ctx context.Context, delta *session.Delta) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return &session.AdapterError{Op: "apply", Err: err}
	}
	if err := st.applyTx(ctx, tx, delta); err != nil {
		_ = tx.Rollback()
		return &session.AdapterError{Op: "apply", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &session.AdapterError{Op: "apply", Err: err}
	}
	return nil
}

func (st *Store) applyTx(ctx context.Context, tx *sql.Tx, delta *session.Delta) error {
	for _, created := range delta.Created {
		classes, attrs, err := encodeNode(created)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, classes, attributes) VALUES (?, ?, ?)`,
			string(created.ID), classes, attrs); err != nil {
			return fmt.Errorf("insert node '%s': %w", created.ID, err)
		}
		for rel, targets := range created.Edges {
			for _, dst := range targets {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO edges (src, rel, dst) VALUES (?, ?, ?)`,
					string(created.ID), rel.String(), string(dst)); err != nil {
					return fmt.Errorf("insert edge: %w", err)
				}
			}
		}
	}

	for _, upd := range delta.Updated {
		if len(upd.SetAttributes) > 0 {
			var raw string
			err := tx.QueryRowContext(ctx,
				`SELECT attributes FROM nodes WHERE id = ?`, string(upd.ID)).Scan(&raw)
			if err == sql.ErrNoRows {
				return fmt.Errorf("update of unknown node '%s'", upd.ID)
			}
			if err != nil {
				return err
			}
			attrs := make(map[string]any)
			if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
				return fmt.Errorf("node '%s': corrupt attributes: %w", upd.ID, err)
			}
			for k, v := range upd.SetAttributes {
				attrs[k.String()] = v
			}
			merged, err := json.Marshal(attrs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE nodes SET attributes = ? WHERE id = ?`,
				string(merged), string(upd.ID)); err != nil {
				return fmt.Errorf("update node '%s': %w", upd.ID, err)
			}
		} else {
			var n int
			err := tx.QueryRowContext(ctx,
				`SELECT count(*) FROM nodes WHERE id = ?`, string(upd.ID)).Scan(&n)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("update of unknown node '%s'", upd.ID)
			}
		}
		for rel, targets := range upd.AddedEdges {
			for _, dst := range targets {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO edges (src, rel, dst) VALUES (?, ?, ?)`,
					string(upd.ID), rel.String(), string(dst)); err != nil {
					return fmt.Errorf("insert edge: %w", err)
				}
			}
		}
		for rel, targets := range upd.RemovedEdges {
			for _, dst := range targets {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM edges WHERE src = ? AND rel = ? AND dst = ?`,
					string(upd.ID), rel.String(), string(dst)); err != nil {
					return fmt.Errorf("delete edge: %w", err)
				}
			}
		}
	}

	for _, id := range delta.Deleted {
		res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, string(id))
		if err != nil {
			return fmt.Errorf("delete node '%s': %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete of unknown node '%s'", id)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM edges WHERE src = ? OR dst = ?`, string(id), string(id)); err != nil {
			return fmt.Errorf("delete edges of '%s': %w", id, err)
		}
	}
	return nil
}

// Fetch 拉取节点快照并扩展边目标闭包。整批在同一个只读事务里
// 完成，并发 Apply 不会让同批快照内部不一致
func (st *Store) Fetch(ctx context.Context, ids []graph.NodeID) (map[graph.NodeID]*session.NodeState, error) {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &session.AdapterError{Op: "fetch", Err: err}
	}
	defer tx.Rollback()

	out := make(map[graph.NodeID]*session.NodeState)
	queue := append([]graph.NodeID(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := out[id]; done {
			continue
		}
		state, err := fetchOne(ctx, tx, id)
		if err != nil {
			return nil, &session.AdapterError{Op: "fetch", Err: err}
		}
		out[id] = state
		for _, targets := range state.Edges {
			queue = append(queue, targets...)
		}
	}
	return out, nil
}

func fetchOne(ctx context.Context, tx *sql.Tx, id graph.NodeID) (*session.NodeState, error) {
	var classesRaw, attrsRaw string
	err := tx.QueryRowContext(ctx,
		`SELECT classes, attributes FROM nodes WHERE id = ?`, string(id)).
		Scan(&classesRaw, &attrsRaw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node '%s' does not exist", id)
	}
	if err != nil {
		return nil, err
	}

	state := &session.NodeState{ID: id}
	if err := json.Unmarshal([]byte(classesRaw), &state.Classes); err != nil {
		return nil, fmt.Errorf("node '%s': corrupt classes: %w", id, err)
	}
	if err := json.Unmarshal([]byte(attrsRaw), &state.Attributes); err != nil {
		return nil, fmt.Errorf("node '%s': corrupt attributes: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT rel, dst FROM edges WHERE src = ? ORDER BY rel, dst`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var relRaw, dst string
		if err := rows.Scan(&relRaw, &dst); err != nil {
			return nil, err
		}
		rel, err := ontology.ParseQName(relRaw, "")
		if err != nil {
			return nil, fmt.Errorf("node '%s': corrupt edge relationship '%s': %w", id, relRaw, err)
		}
		if state.Edges == nil {
			state.Edges = make(map[ontology.QName][]graph.NodeID)
		}
		state.Edges[rel] = append(state.Edges[rel], graph.NodeID(dst))
	}
	return state, rows.Err()
}
