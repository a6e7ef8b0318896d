package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DisplayEntry is one journaled display_data message.
type DisplayEntry struct {
	Seq       int64           `json:"seq"`
	Document  string          `json:"document"`
	KernelID  string          `json:"kernel_id,omitempty"`
	MsgID     string          `json:"msg_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// Journal appends display_data messages per document so a late render
// surface can fetch output it missed.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Append records e and returns its sequence number. Seq and CreatedAt are
// assigned here.
func (j *Journal) Append(ctx context.Context, e DisplayEntry) (int64, error) {
	if e.Document == "" || e.MsgID == "" {
		return 0, fmt.Errorf("display entry needs document and msg_id")
	}
	content := e.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO display_log (document, kernel_id, msg_id, parent_id, content, created_at)
VALUES (?, ?, ?, ?, ?, ?);`,
		e.Document, nullable(e.KernelID), e.MsgID, nullable(e.ParentID), string(content),
		j.now().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert display entry: %w", err)
	}
	return res.LastInsertId()
}

// Since returns entries for document with seq > after, oldest first. A limit
// of zero or less means 100.
func (j *Journal) Since(ctx context.Context, document string, after int64, limit int) ([]DisplayEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, document, kernel_id, msg_id, parent_id, content, created_at
FROM display_log WHERE document = ? AND seq > ? ORDER BY seq LIMIT ?;`,
		document, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query display log: %w", err)
	}
	defer rows.Close()

	var out []DisplayEntry
	for rows.Next() {
		var (
			e                  DisplayEntry
			kernelID, parentID sql.NullString
			content, createdAt string
		)
		if err := rows.Scan(&e.Seq, &e.Document, &kernelID, &e.MsgID, &parentID, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan display entry: %w", err)
		}
		e.KernelID = kernelID.String
		e.ParentID = parentID.String
		e.Content = json.RawMessage(content)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than retention and reports how many went.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-retention).Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM display_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune display log: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
