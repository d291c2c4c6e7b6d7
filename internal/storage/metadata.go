package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// ErrNotFound is returned when a job or transcript does not exist.
var ErrNotFound = errors.New("not found")

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// JobRecord is the queue-side state of one transcription job.
type JobRecord struct {
	ID          string    `json:"job_id"`
	RequestName string    `json:"request_name"`
	SourceType  string    `json:"source_type"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TranscriptRecord describes a finished transcript.
type TranscriptRecord struct {
	JobID         string    `json:"job_id"`
	RequestName   string    `json:"request_name"`
	SourceType    string    `json:"source_type"`
	Provider      string    `json:"provider"`
	ProviderJobID string    `json:"provider_job_id"`
	Languages     []string  `json:"languages"`
	SegmentCount  int       `json:"segment_count"`
	SpeakerCount  int       `json:"speaker_count"`
	LocalPath     string    `json:"local_path"`
	GDriveURL     string    `json:"gdrive_url,omitempty"`
	ElapsedSec    float64   `json:"elapsed_seconds"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; keep workers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_job_id TEXT,
		languages TEXT,
		segment_count INTEGER,
		speaker_count INTEGER,
		gdrive_url TEXT,
		local_path TEXT NOT NULL,
		elapsed REAL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
	CREATE INDEX IF NOT EXISTS idx_request_name ON transcripts(request_name);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// CreateJob records a newly queued job.
func (mdb *MetadataDB) CreateJob(id, requestName, sourceType string) error {
	now := time.Now()
	_, err := mdb.db.Exec(`
	INSERT INTO jobs (id, request_name, source_type, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		id, requestName, sourceType, types.StatusQueued, now, now)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job to status, recording errMsg for failures.
func (mdb *MetadataDB) UpdateJobStatus(id, status, errMsg string) error {
	res, err := mdb.db.Exec(`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob retrieves a job by ID
func (mdb *MetadataDB) GetJob(id string) (*JobRecord, error) {
	var (
		job    JobRecord
		errMsg sql.NullString
	)
	err := mdb.db.QueryRow(`
	SELECT id, request_name, source_type, status, error, created_at, updated_at
	FROM jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.RequestName, &job.SourceType, &job.Status, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Error = errMsg.String
	return &job, nil
}

// SaveTranscript saves transcript metadata to the database
func (mdb *MetadataDB) SaveTranscript(rec *TranscriptRecord) error {
	query := `
	INSERT INTO transcripts (job_id, request_name, source_type, provider, provider_job_id, languages,
		segment_count, speaker_count, gdrive_url, local_path, elapsed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := mdb.db.Exec(query, rec.JobID, rec.RequestName, rec.SourceType, rec.Provider,
		rec.ProviderJobID, strings.Join(rec.Languages, ","), rec.SegmentCount, rec.SpeakerCount,
		rec.GDriveURL, rec.LocalPath, rec.ElapsedSec, created)
	if err != nil {
		return fmt.Errorf("failed to save transcript metadata: %w", err)
	}

	return nil
}

const transcriptColumns = `job_id, request_name, source_type, provider, provider_job_id, languages,
	segment_count, speaker_count, gdrive_url, local_path, elapsed, created_at`

// GetTranscript retrieves transcript metadata by job ID
func (mdb *MetadataDB) GetTranscript(jobID string) (*TranscriptRecord, error) {
	row := mdb.db.QueryRow(`SELECT `+transcriptColumns+` FROM transcripts WHERE job_id = ?`, jobID)
	rec, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return rec, nil
}

// ListTranscripts returns the most recent transcripts
func (mdb *MetadataDB) ListTranscripts(limit int) ([]*TranscriptRecord, error) {
	rows, err := mdb.db.Query(`SELECT `+transcriptColumns+` FROM transcripts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []*TranscriptRecord{}
	for rows.Next() {
		rec, err := scanTranscript(rows)
		if err != nil {
			continue
		}
		transcripts = append(transcripts, rec)
	}

	return transcripts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(s scanner) (*TranscriptRecord, error) {
	var (
		rec                      TranscriptRecord
		providerJobID, languages sql.NullString
		gdrive                   sql.NullString
		elapsed                  sql.NullFloat64
		segments, speakers       sql.NullInt64
	)
	err := s.Scan(&rec.JobID, &rec.RequestName, &rec.SourceType, &rec.Provider, &providerJobID,
		&languages, &segments, &speakers, &gdrive, &rec.LocalPath, &elapsed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.ProviderJobID = providerJobID.String
	rec.Languages = []string{}
	if languages.String != "" {
		rec.Languages = strings.Split(languages.String, ",")
	}
	rec.SegmentCount = int(segments.Int64)
	rec.SpeakerCount = int(speakers.Int64)
	rec.GDriveURL = gdrive.String
	rec.ElapsedSec = elapsed.Float64
	return &rec, nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
