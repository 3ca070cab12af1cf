package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/models"
)

// SQLiteReportStore implements ReportStore using SQLite for persistence.
type SQLiteReportStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// NewSQLiteReportStore creates a SQLiteReportStore rooted at projectRoot.
// It creates the database at .fcouncil/fcouncil.db.
func NewSQLiteReportStore(projectRoot string, logger *slog.Logger) (*SQLiteReportStore, error) {
	return OpenSQLiteReportStore(DefaultDBPath(projectRoot), logger)
}

// OpenSQLiteReportStore opens (or creates) the database at dbPath.
func OpenSQLiteReportStore(dbPath string, logger *slog.Logger) (*SQLiteReportStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteReportStore{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteReportStore) Path() string {
	return s.dbPath
}

// Save makes r the current report.
func (s *SQLiteReportStore) Save(ctx context.Context, r models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertReport(ctx, tx, r); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO current_report (id, report_id) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET report_id = excluded.report_id`, r.ID); err != nil {
			return fmt.Errorf("failed to set current report: %w", err)
		}
		return pruneOrphans(ctx, tx)
	})
}

// Current returns the current report, or nil if none is set.
func (s *SQLiteReportStore) Current(ctx context.Context) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.file_name, r.timestamp, r.summary, r.agents
		FROM current_report c JOIN reports r ON r.id = c.report_id
		WHERE c.id = 1`)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if errors.Is(err, errCorruptRow) {
		s.logger.Warn("skipping unreadable current report", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current report: %w", err)
	}
	if err := r.Validate(); err != nil {
		s.logger.Warn("skipping invalid current report", "id", r.ID, "error", err)
		return nil, nil
	}
	return &r, nil
}

// AppendToHistory puts r at the front of the history.
func (s *SQLiteReportStore) AppendToHistory(ctx context.Context, r models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertReport(ctx, tx, r); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (report_id, seq)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM history))
			ON CONFLICT(report_id) DO UPDATE SET seq = excluded.seq`, r.ID); err != nil {
			return fmt.Errorf("failed to append to history: %w", err)
		}
		return nil
	})
}

// DeleteFromHistory removes the report with id from the history.
func (s *SQLiteReportStore) DeleteFromHistory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE report_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete from history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete from history: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return pruneOrphans(ctx, tx)
	})
}

// ClearHistory removes every report from the history.
func (s *SQLiteReportStore) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		return pruneOrphans(ctx, tx)
	})
}

// LoadHistory returns the history newest first. Rows that fail validation
// are logged and skipped.
func (s *SQLiteReportStore) LoadHistory(ctx context.Context) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.file_name, r.timestamp, r.summary, r.agents
		FROM history h JOIN reports r ON r.id = h.report_id
		ORDER BY h.seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if errors.Is(err, errCorruptRow) {
			s.logger.Warn("skipping unreadable history row", "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := r.Validate(); err != nil {
			s.logger.Warn("skipping invalid history report", "id", r.ID, "error", err)
			continue
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return reports, nil
}

// GetReport returns the report with id.
func (s *SQLiteReportStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, timestamp, summary, agents FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, errCorruptRow) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}
	if err := r.Validate(); err != nil {
		s.logger.Warn("stored report failed validation", "id", id, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &r, nil
}

// Close closes the database.
func (s *SQLiteReportStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteReportStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertReport(ctx context.Context, tx *sql.Tx, r models.Report) error {
	agents := r.Agents
	if agents == nil {
		agents = []models.AgentResult{}
	}
	agentsJSON, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("failed to encode agents: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, file_name, timestamp, summary, agents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			timestamp = excluded.timestamp,
			summary = excluded.summary,
			agents = excluded.agents`,
		r.ID, r.FileName, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Summary, string(agentsJSON))
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

// pruneOrphans deletes report bodies referenced by neither the history nor
// the current slot.
func pruneOrphans(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM reports
		WHERE id NOT IN (SELECT report_id FROM history)
		  AND id NOT IN (SELECT report_id FROM current_report)`)
	if err != nil {
		return fmt.Errorf("failed to prune reports: %w", err)
	}
	return nil
}

// errCorruptRow marks a row whose columns could not be decoded.
var errCorruptRow = errors.New("corrupt report row")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (models.Report, error) {
	var (
		r          models.Report
		ts, agents string
	)
	if err := row.Scan(&r.ID, &r.FileName, &ts, &r.Summary, &agents); err != nil {
		return models.Report{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return r, fmt.Errorf("%w: %s: bad timestamp %q: %v", errCorruptRow, r.ID, ts, err)
	}
	r.Timestamp = t

	if err := json.Unmarshal([]byte(agents), &r.Agents); err != nil {
		return r, fmt.Errorf("%w: %s: bad agents: %v", errCorruptRow, r.ID, err)
	}
	return r, nil
}
