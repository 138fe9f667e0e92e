package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pavelanni/learnpath/internal/model"
)

// GetImportedFileHash returns the sha256 recorded for path, or "" if the file
// was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the sha256 of an imported file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (path, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = excluded.sha256, imported_at = excluded.imported_at`,
		path, hash, s.now().UTC(),
	)
	return err
}

// ImportTopic stores a topic and all of its lessons in one transaction.
// Nothing is written if any lesson fails validation.
func (s *Store) ImportTopic(ctx context.Context, ti model.TopicImport) (int, error) {
	for _, l := range ti.Lessons {
		if err := validateLesson(ti.ID, l); err != nil {
			return 0, err
		}
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertTopic(ctx, tx, model.Topic{ID: ti.ID, Name: ti.Name, Description: ti.Description}, s.now().UTC()); err != nil {
			return err
		}
		for _, l := range ti.Lessons {
			if err := upsertLesson(ctx, tx, ti.ID, l, s.now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ti.Lessons), nil
}
