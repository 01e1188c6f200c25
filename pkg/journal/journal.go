// Package journal keeps a local SQLite record of uploads so that retention can
// be checked later without a ledger index.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/earnout-labs/dealvault/pkg/bus"
	"github.com/earnout-labs/dealvault/pkg/bus/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var log = logging.Logger("pkg/journal")

const (
	defaultJournalMode    = "WAL"
	defaultBusyTimeout    = 10 * time.Second
	preparedStmtCacheSize = 32
)

// gooseMu serializes migrations since goose keeps its settings in globals.
var gooseMu sync.Mutex

// Entry is one recorded upload.
type Entry struct {
	ID         string
	BlobID     string
	DealID     string
	PeriodID   string
	DataType   string
	Uploader   string
	Size       uint64
	Commitment string
	// EncryptionCommitment and PolicyID are set when the payload was
	// encrypted before upload.
	EncryptionCommitment string
	PolicyID             string
	StartEpoch           uint64
	EndEpoch             uint64
	UploadedAt           time.Time
}

type Option func(*Journal)

func WithEventBus(b bus.Publisher) Option {
	return func(j *Journal) {
		j.bus = b
	}
}

type Journal struct {
	db            *sql.DB
	bus           bus.Publisher
	preparedStmts *lru.Cache[string, *sql.Stmt]
}

// Open opens (creating if needed) the journal database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	pragmas := []string{
		fmt.Sprintf("_pragma=journal_mode(%s)", defaultJournalMode),
		fmt.Sprintf("_pragma=busy_timeout(%d)", defaultBusyTimeout.Milliseconds()),
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, strings.Join(pragmas, "&")))
	if err != nil {
		return nil, fmt.Errorf("opening journal database at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	j, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	// goose logs through the standard logger and offers no way to silence it
	stdlog.Default().SetOutput(io.Discard)
	defer stdlog.Default().SetOutput(os.Stderr)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("applying journal migrations: %w", err)
	}
	return nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) (*Journal, error) {
	cache, err := lru.NewWithEvict(preparedStmtCacheSize, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, bus: bus.NoopBus{}, preparedStmts: cache}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *Journal) Close() error {
	j.preparedStmts.Purge()
	return j.db.Close()
}

func (j *Journal) prepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := j.preparedStmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := j.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	_ = j.preparedStmts.Add(query, stmt)
	return stmt, nil
}

const insertEntry = `INSERT INTO uploads (
	id, blob_id, deal_id, period_id, data_type, uploader, size, commitment,
	encryption_commitment, policy_id, start_epoch, end_epoch, uploaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record stores e, assigning it an id if it has none.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.BlobID == "" {
		return Entry{}, errors.New("journal entry has no blob id")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now()
	}
	e.UploadedAt = e.UploadedAt.UTC()

	stmt, err := j.prepareStmt(ctx, insertEntry)
	if err != nil {
		return Entry{}, fmt.Errorf("preparing insert: %w", err)
	}
	_, err = stmt.ExecContext(ctx,
		e.ID,
		e.BlobID,
		e.DealID,
		e.PeriodID,
		e.DataType,
		e.Uploader,
		e.Size,
		e.Commitment,
		nullString(e.EncryptionCommitment),
		nullString(e.PolicyID),
		e.StartEpoch,
		e.EndEpoch,
		e.UploadedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("recording upload of blob %s: %w", e.BlobID, err)
	}
	j.bus.Publish(events.TopicJournal(), events.JournalEvent{
		ID:       e.ID,
		BlobID:   e.BlobID,
		DealID:   e.DealID,
		EndEpoch: e.EndEpoch,
	})
	log.Debugw("recorded upload", "id", e.ID, "blobID", e.BlobID, "deal", e.DealID)
	return e, nil
}

const selectEntry = `SELECT
	id, blob_id, deal_id, period_id, data_type, uploader, size, commitment,
	encryption_commitment, policy_id, start_epoch, end_epoch, uploaded_at
FROM uploads`

// Get returns the most recent entry for blobID, or nil if there is none.
func (j *Journal) Get(ctx context.Context, blobID string) (*Entry, error) {
	stmt, err := j.prepareStmt(ctx, selectEntry+` WHERE blob_id = ? ORDER BY uploaded_at DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("preparing query: %w", err)
	}
	e, err := scanEntry(stmt.QueryRowContext(ctx, blobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal entry for blob %s: %w", blobID, err)
	}
	return e, nil
}

// List returns the entries of dealID, or of every deal when dealID is empty,
// newest first.
func (j *Journal) List(ctx context.Context, dealID string) ([]Entry, error) {
	query, args := selectEntry+` ORDER BY uploaded_at DESC`, []any{}
	if dealID != "" {
		query, args = selectEntry+` WHERE deal_id = ? ORDER BY uploaded_at DESC`, []any{dealID}
	}
	stmt, err := j.prepareStmt(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing query: %w", err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("reading journal entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                   Entry
		encCommit, policyID sql.NullString
		uploadedAt          int64
	)
	err := row.Scan(
		&e.ID,
		&e.BlobID,
		&e.DealID,
		&e.PeriodID,
		&e.DataType,
		&e.Uploader,
		&e.Size,
		&e.Commitment,
		&encCommit,
		&policyID,
		&e.StartEpoch,
		&e.EndEpoch,
		&uploadedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EncryptionCommitment = encCommit.String
	e.PolicyID = policyID.String
	e.UploadedAt = time.UnixMilli(uploadedAt).UTC()
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
