package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists renders and agent config.
type Repository interface {
	CreateRender(ctx context.Context, render *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)
	ListPendingRenders(ctx context.Context) ([]*Render, error)
	ClaimRender(ctx context.Context, id string) (bool, error)
	UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error
	SaveRenderResult(ctx context.Context, render *Render) error
	CountRenders(ctx context.Context) (map[string]int, error)
	OutputPathInUse(ctx context.Context, path string) (bool, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const renderColumns = `id, status, audio_path, clips_dir, output_path, seed, tier, mode,
	segment_count, edl_path, caption, captioned_path, error, attempts, created_at, updated_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRender(ctx context.Context, rd *Render) error {
	attempts, err := encodeAttempts(rd.Attempts)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO renders (`+renderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rd.ID, rd.Status, rd.AudioPath, rd.ClipsDir, rd.OutputPath, int64(rd.Seed),
		nullString(rd.Tier), nullString(rd.Mode), rd.SegmentCount, nullString(rd.EDLPath),
		boolToInt(rd.Caption), nullString(rd.CaptionedPath), nullString(rd.Error), attempts,
		formatTime(rd.CreatedAt), formatTime(rd.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*Render, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	rd, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rd, err
}

func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+renderColumns+`
		FROM renders ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRenders(rows)
}

func (r *SQLiteRepository) ListPendingRenders(ctx context.Context) ([]*Render, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+renderColumns+`
		FROM renders WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRenders(rows)
}

// ClaimRender moves a pending render to running. It reports false when the
// render was no longer pending.
func (r *SQLiteRepository) ClaimRender(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SQLiteRepository) UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

// SaveRenderResult stores the outcome fields of a finished render.
func (r *SQLiteRepository) SaveRenderResult(ctx context.Context, rd *Render) error {
	attempts, err := encodeAttempts(rd.Attempts)
	if err != nil {
		return err
	}
	rd.UpdatedAt = time.Now()
	_, err = r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, seed = ?, tier = ?, mode = ?, segment_count = ?,
			edl_path = ?, captioned_path = ?, error = ?, attempts = ?, updated_at = ?
		WHERE id = ?
	`, rd.Status, int64(rd.Seed), nullString(rd.Tier), nullString(rd.Mode), rd.SegmentCount,
		nullString(rd.EDLPath), nullString(rd.CaptionedPath), nullString(rd.Error), attempts,
		formatTime(rd.UpdatedAt), rd.ID)
	return err
}

// OutputPathInUse reports whether a queued, running or completed render
// already writes to path.
func (r *SQLiteRepository) OutputPathInUse(ctx context.Context, path string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM renders WHERE output_path = ? AND status != 'failed' LIMIT 1
	`, path).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *SQLiteRepository) CountRenders(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM renders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRender(row rowScanner) (*Render, error) {
	var rd Render
	var seed int64
	var caption int
	var tier, mode, edlPath, captionedPath, errMsg, attempts sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rd.ID, &rd.Status, &rd.AudioPath, &rd.ClipsDir, &rd.OutputPath, &seed,
		&tier, &mode, &rd.SegmentCount, &edlPath, &caption, &captionedPath, &errMsg, &attempts,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rd.Seed = uint64(seed)
	rd.Tier = tier.String
	rd.Mode = mode.String
	rd.EDLPath = edlPath.String
	rd.Caption = caption == 1
	rd.CaptionedPath = captionedPath.String
	rd.Error = errMsg.String
	rd.CreatedAt = parseTime(createdAt)
	rd.UpdatedAt = parseTime(updatedAt)
	if attempts.String != "" {
		if err := json.Unmarshal([]byte(attempts.String), &rd.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts for render %s: %w", rd.ID, err)
		}
	}
	return &rd, nil
}

func scanRenders(rows *sql.Rows) ([]*Render, error) {
	var renders []*Render
	for rows.Next() {
		rd, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, rd)
	}
	return renders, rows.Err()
}

func encodeAttempts(a []AttemptRecord) (sql.NullString, error) {
	if len(a) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode attempts: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts the second-resolution form SQLite's datetime()
// writes.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
