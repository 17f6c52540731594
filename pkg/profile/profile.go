// Package profile persists fitted calibration models in SQLite so a
// restart can restore the last calibration.
package profile

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// schema.sql creates the profiles table.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no profile matches.
var ErrNotFound = errors.New("profile: not found")

// ErrScreenMismatch is returned by Recorder.Restore when the latest profile
// was fitted on a screen of a different size.
var ErrScreenMismatch = errors.New("profile: screen size mismatch")

// Profile is one saved calibration.
type Profile struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id,omitempty"`
	CameraID     int        `json:"camera_id"`
	ScreenWidth  float64    `json:"screen_width"`
	ScreenHeight float64    `json:"screen_height"`
	Model        gaze.Model `json:"model"`
	PointsUsed   int        `json:"points_used"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Store is a SQLite-backed profile store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profile: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: create schema: %w", err)
	}
	logger.Info("profile store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts p, assigning an ID and creation time when unset, and
// returns the stored profile.
func (s *Store) Save(ctx context.Context, p Profile) (Profile, error) {
	if !p.Model.Valid {
		return Profile{}, fmt.Errorf("profile: refusing to save an invalid model")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)

	query := `
		INSERT INTO calibration_profiles (id, session_id, camera_id, screen_width, screen_height,
			scale_x, scale_y, offset_x, offset_y, points_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.SessionID, p.CameraID, p.ScreenWidth, p.ScreenHeight,
		p.Model.Scale.X, p.Model.Scale.Y, p.Model.Offset.X, p.Model.Offset.Y,
		p.PointsUsed, p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: save: %w", err)
	}
	s.logger.Info("calibration profile saved", "id", p.ID, "session", p.SessionID)
	return p, nil
}

const selectColumns = `id, session_id, camera_id, screen_width, screen_height,
	scale_x, scale_y, offset_x, offset_y, points_used, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	var created int64
	err := row.Scan(&p.ID, &p.SessionID, &p.CameraID, &p.ScreenWidth, &p.ScreenHeight,
		&p.Model.Scale.X, &p.Model.Scale.Y, &p.Model.Offset.X, &p.Model.Offset.Y,
		&p.PointsUsed, &created)
	if err != nil {
		return Profile{}, err
	}
	p.Model.Valid = true
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

// Get returns the profile with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM calibration_profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profile: get %s: %w", id, err)
	}
	return p, nil
}

// Latest returns the most recently saved profile for cameraID.
func (s *Store) Latest(ctx context.Context, cameraID int) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM calibration_profiles
		WHERE camera_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, cameraID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profile: latest: %w", err)
	}
	return p, nil
}

// List returns up to limit profiles, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM calibration_profiles
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("profile: list: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profile: scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Delete removes a profile.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calibration_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("profile: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("profile: delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
