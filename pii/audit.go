package pii

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Audit operations recorded by the server
const (
	OperationAnonymizeDict = "anonymize_dict"
	OperationAnonymizeList = "anonymize_list"
	OperationAnonymizeText = "anonymize_text"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// AuditRecord summarizes one anonymization request. It never holds original text.
type AuditRecord struct {
	ID           uuid.UUID      `json:"id"`
	RequestID    string         `json:"request_id"`
	Operation    string         `json:"operation"`
	LeafCount    int            `json:"leaf_count"`
	EntityCounts map[string]int `json:"entity_counts"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditDB defines the interface for audit storage
type AuditDB interface {
	// InsertAudit stores one audit record
	InsertAudit(ctx context.Context, record AuditRecord) error

	// GetAudits retrieves audit records, newest first
	GetAudits(ctx context.Context, limit int, offset int) ([]AuditRecord, error)

	// GetAuditsCount returns the total number of audit records
	GetAuditsCount(ctx context.Context) (int, error)

	// CleanupOldAudits removes records older than specified duration
	CleanupOldAudits(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close closes the database connection
	Close() error
}

// PostgresAuditDB implements AuditDB for PostgreSQL
type PostgresAuditDB struct {
	db *sql.DB
}

// NewPostgresAuditDB creates a new PostgreSQL audit database
func NewPostgresAuditDB(ctx context.Context, config DatabaseConfig) (*PostgresAuditDB, error) {
	// Build connection string
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.MaxLifetime)

	auditDB, err := newPostgresAuditDBFromConn(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return auditDB, nil
}

// newPostgresAuditDBFromConn pings db and creates the schema
func newPostgresAuditDBFromConn(ctx context.Context, db *sql.DB) (*PostgresAuditDB, error) {
	// Test connection
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Create table if it doesn't exist
	if err := createAuditTableIfNotExists(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresAuditDB{db: db}, nil
}

const createAuditTableQuery = `
	CREATE TABLE IF NOT EXISTS anonymization_audit (
		id UUID PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		operation VARCHAR(32) NOT NULL,
		leaf_count INTEGER NOT NULL DEFAULT 0,
		entity_counts JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_anonymization_audit_created_at ON anonymization_audit(created_at);
	CREATE INDEX IF NOT EXISTS idx_anonymization_audit_request_id ON anonymization_audit(request_id);
	`

// createAuditTableIfNotExists creates the anonymization_audit table if it doesn't exist
func createAuditTableIfNotExists(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createAuditTableQuery)
	return err
}

const insertAuditQuery = `
	INSERT INTO anonymization_audit (id, request_id, operation, leaf_count, entity_counts, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

// InsertAudit stores one audit record
func (p *PostgresAuditDB) InsertAudit(ctx context.Context, record AuditRecord) error {
	record = withDefaults(record)

	countsJSON, err := json.Marshal(record.EntityCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal entity counts: %w", err)
	}

	_, err = p.db.ExecContext(ctx, insertAuditQuery,
		record.ID.String(), record.RequestID, record.Operation, record.LeafCount, string(countsJSON), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

const selectAuditsQuery = `
	SELECT id, request_id, operation, leaf_count, entity_counts, created_at
	FROM anonymization_audit
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2
	`

// GetAudits retrieves audit records, newest first
func (p *PostgresAuditDB) GetAudits(ctx context.Context, limit int, offset int) ([]AuditRecord, error) {
	rows, err := p.db.QueryContext(ctx, selectAuditsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var (
			id         string
			record     AuditRecord
			countsJSON []byte
		)
		if err := rows.Scan(&id, &record.RequestID, &record.Operation, &record.LeafCount, &countsJSON, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		record.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid audit id %q: %w", id, err)
		}

		record.EntityCounts = map[string]int{}
		if len(countsJSON) > 0 {
			if err := json.Unmarshal(countsJSON, &record.EntityCounts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entity counts: %w", err)
			}
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return records, nil
}

// GetAuditsCount returns the total number of audit records
func (p *PostgresAuditDB) GetAuditsCount(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anonymization_audit`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get audit count: %w", err)
	}
	return count, nil
}

// CleanupOldAudits removes records older than specified duration
func (p *PostgresAuditDB) CleanupOldAudits(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM anonymization_audit WHERE created_at < NOW() - make_interval(secs => $1)`

	result, err := p.db.ExecContext(ctx, query, int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Close closes the database connection
func (p *PostgresAuditDB) Close() error {
	return p.db.Close()
}

// InMemoryAuditDB implements AuditDB for in-memory storage (fallback)
type InMemoryAuditDB struct {
	mu         sync.RWMutex
	records    []AuditRecord
	maxEntries int
}

// DefaultMaxAuditEntries bounds the in-memory audit log
const DefaultMaxAuditEntries = 5000

// NewInMemoryAuditDB creates a new in-memory audit database
func NewInMemoryAuditDB() *InMemoryAuditDB {
	return &InMemoryAuditDB{maxEntries: DefaultMaxAuditEntries}
}

// InsertAudit stores one audit record, evicting the oldest beyond the size limit
func (i *InMemoryAuditDB) InsertAudit(ctx context.Context, record AuditRecord) error {
	record = withDefaults(record)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.records = append(i.records, record)
	if overflow := len(i.records) - i.maxEntries; overflow > 0 {
		i.records = append([]AuditRecord(nil), i.records[overflow:]...)
	}
	return nil
}

// GetAudits retrieves audit records, newest first
func (i *InMemoryAuditDB) GetAudits(ctx context.Context, limit int, offset int) ([]AuditRecord, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	sorted := append([]AuditRecord(nil), i.records...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].CreatedAt.After(sorted[b].CreatedAt)
	})

	records := []AuditRecord{}
	for idx := offset; idx < len(sorted) && len(records) < limit; idx++ {
		records = append(records, sorted[idx])
	}
	return records, nil
}

// GetAuditsCount returns the total number of audit records
func (i *InMemoryAuditDB) GetAuditsCount(ctx context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records), nil
}

// CleanupOldAudits removes records older than specified duration
func (i *InMemoryAuditDB) CleanupOldAudits(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	i.mu.Lock()
	defer i.mu.Unlock()

	kept := i.records[:0]
	var removed int64
	for _, record := range i.records {
		if record.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	i.records = kept
	return removed, nil
}

// Close is a no-op for in-memory storage
func (i *InMemoryAuditDB) Close() error {
	return nil
}

func withDefaults(record AuditRecord) AuditRecord {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.EntityCounts == nil {
		record.EntityCounts = map[string]int{}
	}
	return record
}

// OpenAuditDB opens the PostgreSQL store when enabled, falling back to memory on failure
func OpenAuditDB(ctx context.Context, enabled bool, config DatabaseConfig) AuditDB {
	if !enabled {
		return NewInMemoryAuditDB()
	}

	auditDB, err := NewPostgresAuditDB(ctx, config)
	if err != nil {
		log.Printf("[AuditDB] ⚠️  Failed to open PostgreSQL audit store, using in-memory storage: %v", err)
		return NewInMemoryAuditDB()
	}
	log.Printf("[AuditDB] Using PostgreSQL audit store at %s:%d/%s", config.Host, config.Port, config.Database)
	return auditDB
}
