package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	_ "modernc.org/sqlite"
)

const ocrCacheDefaultTTL = 30 * 24 * time.Hour

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes.
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	end := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end < 0 {
		end = len(name)
	}
	n, _ := strconv.Atoi(name[:end])
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.NarrationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, pages_dir, output_dir, width, height, fps,
			background_audio, subtitles_only, status, stage, percent, video_path,
			subtitle_path, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.NarrationJob, 0)
	for rows.Next() {
		var item jobs.NarrationJob
		var status string
		var audio, srtOnly int
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.PagesDir,
			&item.Payload.OutputDir,
			&item.Payload.Width,
			&item.Payload.Height,
			&item.Payload.FPS,
			&audio,
			&srtOnly,
			&status,
			&item.Stage,
			&item.Percent,
			&item.VideoPath,
			&item.SubtitlePath,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		item.Payload.BackgroundAudio = audio == 1
		item.Payload.SubtitlesOnly = srtOnly == 1
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.NarrationJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, pages_dir, output_dir, width, height, fps,
			background_audio, subtitles_only, status, stage, percent, video_path,
			subtitle_path, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			pages_dir=excluded.pages_dir,
			output_dir=excluded.output_dir,
			width=excluded.width,
			height=excluded.height,
			fps=excluded.fps,
			background_audio=excluded.background_audio,
			subtitles_only=excluded.subtitles_only,
			status=excluded.status,
			stage=excluded.stage,
			percent=excluded.percent,
			video_path=excluded.video_path,
			subtitle_path=excluded.subtitle_path,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.PagesDir,
		job.Payload.OutputDir,
		job.Payload.Width,
		job.Payload.Height,
		job.Payload.FPS,
		boolToInt(job.Payload.BackgroundAudio),
		boolToInt(job.Payload.SubtitlesOnly),
		string(job.Status),
		job.Stage,
		job.Percent,
		job.VideoPath,
		job.SubtitlePath,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// SaveTimeline stores the caption timeline of a job or session, replacing
// any earlier version.
func (s *SQLiteStore) SaveTimeline(ctx context.Context, record TimelineRecord) error {
	units, err := json.Marshal(record.Timeline.Units)
	if err != nil {
		return err
	}
	lang := record.Language
	if lang == "" {
		lang = "und"
	}
	updatedAt := record.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO caption_timelines (owner_id, version, language, units_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
			version=excluded.version,
			language=excluded.language,
			units_json=excluded.units_json,
			updated_at=excluded.updated_at`,
		record.OwnerID,
		record.Timeline.Version,
		lang,
		string(units),
		updatedAt,
	)
	return err
}

func (s *SQLiteStore) LoadTimeline(ctx context.Context, ownerID string) (TimelineRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT owner_id, version, language, units_json, updated_at
		 FROM caption_timelines
		 WHERE owner_id = ?`,
		ownerID,
	)

	var ret TimelineRecord
	var unitsJSON string
	if err := row.Scan(&ret.OwnerID, &ret.Timeline.Version, &ret.Language, &unitsJSON, &ret.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TimelineRecord{}, false, nil
		}
		return TimelineRecord{}, false, err
	}
	units := make([]caption.Unit, 0)
	if err := json.Unmarshal([]byte(unitsJSON), &units); err != nil {
		return TimelineRecord{}, false, err
	}
	ret.Timeline.Units = units
	return ret, true, nil
}

func (s *SQLiteStore) PutOCRCache(ctx context.Context, entry OCRCacheEntry) error {
	updatedAt := entry.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	expiresAt := entry.ExpiresAt.UTC()
	if expiresAt.IsZero() {
		expiresAt = updatedAt.Add(ocrCacheDefaultTTL)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ocr_cache (cache_key, image_path, recognizer, text, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			image_path=excluded.image_path,
			recognizer=excluded.recognizer,
			text=excluded.text,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		entry.CacheKey,
		entry.ImagePath,
		entry.Recognizer,
		entry.Text,
		expiresAt,
		updatedAt,
	)
	return err
}

// GetOCRCache returns an unexpired cache entry.
func (s *SQLiteStore) GetOCRCache(ctx context.Context, cacheKey string, now time.Time) (OCRCacheEntry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cache_key, image_path, recognizer, text, expires_at, updated_at
		 FROM ocr_cache
		 WHERE cache_key = ? AND expires_at > ?`,
		cacheKey,
		now.UTC(),
	)

	var ret OCRCacheEntry
	if err := row.Scan(&ret.CacheKey, &ret.ImagePath, &ret.Recognizer, &ret.Text, &ret.ExpiresAt, &ret.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OCRCacheEntry{}, false, nil
		}
		return OCRCacheEntry{}, false, err
	}
	return ret, true, nil
}

// DeleteExpiredOCRCache removes ocr_cache rows whose expires_at is before now.
func (s *SQLiteStore) DeleteExpiredOCRCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ocr_cache WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteJobData removes the caption timeline saved for a job.
func (s *SQLiteStore) DeleteJobData(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM caption_timelines WHERE owner_id = ?`, jobID)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
