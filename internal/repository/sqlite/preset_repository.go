package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

const createPresetsTable = `
CREATE TABLE IF NOT EXISTS quality_presets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	format TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL DEFAULT '',
	audio_only INTEGER NOT NULL DEFAULT 0,
	subtitles INTEGER NOT NULL DEFAULT 0,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_quality_presets_default ON quality_presets(is_default) WHERE is_default = 1;
`

const selectPresetColumns = `
SELECT id, name, format, quality, audio_only, subtitles, is_default, created_at
FROM quality_presets`

type PresetRepository struct {
	db *sql.DB
}

func NewPresetRepository(db *sql.DB) repository.PresetRepository {
	return &PresetRepository{db: db}
}

func (r *PresetRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPresetsTable); err != nil {
		return fmt.Errorf("create quality_presets table: %w", err)
	}
	return nil
}

func (r *PresetRepository) Create(ctx context.Context, preset *domain.QualityPreset) (int64, error) {
	preset.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if preset.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE quality_presets SET is_default=0 WHERE is_default=1`); err != nil {
			return 0, fmt.Errorf("clear default preset: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO quality_presets (name, format, quality, audio_only, subtitles, is_default, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		preset.Name,
		preset.Format,
		preset.Quality,
		boolToInt(preset.AudioOnly),
		boolToInt(preset.Subtitles),
		boolToInt(preset.IsDefault),
		preset.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("preset %q: %w", preset.Name, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert preset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("preset last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit preset insert: %w", err)
	}
	preset.ID = id
	return id, nil
}

func (r *PresetRepository) Get(ctx context.Context, id int64) (*domain.QualityPreset, error) {
	return scanPreset(r.db.QueryRowContext(ctx, selectPresetColumns+` WHERE id=?`, id))
}

func (r *PresetRepository) GetDefault(ctx context.Context) (*domain.QualityPreset, error) {
	return scanPreset(r.db.QueryRowContext(ctx, selectPresetColumns+` WHERE is_default=1 LIMIT 1`))
}

func (r *PresetRepository) List(ctx context.Context) ([]domain.QualityPreset, error) {
	rows, err := r.db.QueryContext(ctx, selectPresetColumns+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	presets := []domain.QualityPreset{}
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *preset)
	}
	return presets, rows.Err()
}

func (r *PresetRepository) SetDefault(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE quality_presets SET is_default=0 WHERE is_default=1`); err != nil {
		return fmt.Errorf("clear default preset: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE quality_presets SET is_default=1 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("set default preset: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("preset %d: %w", id, repository.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit default preset: %w", err)
	}
	return nil
}

func scanPreset(scanner rowScanner) (*domain.QualityPreset, error) {
	var preset domain.QualityPreset
	if err := scanner.Scan(
		&preset.ID,
		&preset.Name,
		&preset.Format,
		&preset.Quality,
		&preset.AudioOnly,
		&preset.Subtitles,
		&preset.IsDefault,
		&preset.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("preset: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan preset: %w", err)
	}
	preset.CreatedAt = preset.CreatedAt.Local()
	return &preset, nil
}
