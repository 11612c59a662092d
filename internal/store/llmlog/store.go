package llmlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// 中文说明：
// Store 管理 LLM 请求/响应轨迹，方便后续排查提示词与模型输出。
// 与决策存储分库，写入频率不同，也避免大文本拖慢决策查询。

type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Record 保存一次模型调用的输入/输出摘要。
type Record struct {
	ID         int64  `json:"id"`
	TraceID    string `json:"trace_id"`
	Pair       string `json:"pair"`
	ProviderID string `json:"provider_id"`
	System     string `json:"system_prompt"`
	User       string `json:"user_prompt"`
	RawOutput  string `json:"raw_output"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"ts"`
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("llm log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func ensureSchema(db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS llm_traces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		pair TEXT NOT NULL DEFAULT '',
		provider_id TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		user_prompt TEXT NOT NULL DEFAULT '',
		raw_output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL
	)`
	if _, err := db.Exec(stmt); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_llm_traces_trace ON llm_traces(trace_id)`)
	return err
}

func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("llm log store 已关闭")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_traces (trace_id, pair, provider_id, system_prompt, user_prompt, raw_output, error, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.Pair, rec.ProviderID, rec.System, rec.User, rec.RawOutput, rec.Error, rec.Timestamp)
	return err
}

// ListRecent 按时间倒序取最近 limit 条。
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("llm log store 已关闭")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, pair, provider_id, system_prompt, user_prompt, raw_output, error, ts
		 FROM llm_traces ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TraceID, &rec.Pair, &rec.ProviderID,
			&rec.System, &rec.User, &rec.RawOutput, &rec.Error, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
