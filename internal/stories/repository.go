package stories

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateRunProgress(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id, status, errorMsg string) error

	GetUpload(ctx context.Context, videoKey string) (*Upload, error)
	RecordUpload(ctx context.Context, u *Upload) error
	ListUploads(ctx context.Context, limit int) ([]*Upload, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, triggered_by, status, posts_seen, posts_admitted, clips_rendered, clips_published, error, created_at, updated_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TriggeredBy, run.Status, run.PostsSeen, run.PostsAdmitted, run.ClipsRendered, run.ClipsPublished,
		nullString(run.Error), run.CreatedAt.UTC().Format(time.RFC3339), run.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&run.ID, &run.TriggeredBy, &run.Status, &run.PostsSeen, &run.PostsAdmitted,
		&run.ClipsRendered, &run.ClipsPublished, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) UpdateRunProgress(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET posts_seen = ?, posts_admitted = ?, clips_rendered = ?, clips_published = ?, updated_at = ?
		WHERE id = ?
	`, run.PostsSeen, run.PostsAdmitted, run.ClipsRendered, run.ClipsPublished,
		time.Now().UTC().Format(time.RFC3339), run.ID)
	return err
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

const uploadColumns = `video_key, remote_id, title, post_id, part, total, run_id, created_at`

func (r *SQLiteRepository) GetUpload(ctx context.Context, videoKey string) (*Upload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE video_key = ?`, videoKey)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func scanUpload(row rowScanner) (*Upload, error) {
	var u Upload
	var runID sql.NullString
	var createdAt string
	if err := row.Scan(&u.VideoKey, &u.RemoteID, &u.Title, &u.PostID, &u.Part, &u.Total, &runID, &createdAt); err != nil {
		return nil, err
	}
	u.RunID = runID.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (r *SQLiteRepository) RecordUpload(ctx context.Context, u *Upload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_key) DO UPDATE SET remote_id = excluded.remote_id, title = excluded.title
	`, u.VideoKey, u.RemoteID, u.Title, u.PostID, u.Part, u.Total, nullString(u.RunID),
		u.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ListUploads(ctx context.Context, limit int) ([]*Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
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

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
