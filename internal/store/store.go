// Package store persists council reports: the current report and the
// newest-first history of past runs.
package store

import (
	"context"
	"errors"

	"github.com/nvandessel/forensic-council/internal/models"
)

// ErrNotFound is returned when a report id is not known to the store.
var ErrNotFound = errors.New("report not found")

// ReportStore defines the interface for storing council reports.
//
// The current report and the history are independent: saving a report does
// not add it to the history, and deleting a history entry leaves the current
// report alone.
type ReportStore interface {
	// Save validates r and makes it the current report.
	Save(ctx context.Context, r models.Report) error

	// Current returns the current report, or nil if none has been saved.
	Current(ctx context.Context) (*models.Report, error)

	// AppendToHistory validates r and puts it at the front of the history.
	// A report already in the history moves to the front.
	AppendToHistory(ctx context.Context, r models.Report) error

	// DeleteFromHistory removes one report from the history.
	// Returns ErrNotFound if id is not in the history.
	DeleteFromHistory(ctx context.Context, id string) error

	// ClearHistory removes every report from the history.
	ClearHistory(ctx context.Context) error

	// LoadHistory returns the history, newest first.
	LoadHistory(ctx context.Context) ([]models.Report, error)

	// GetReport returns the report with id from the history or the current
	// slot. Returns ErrNotFound if neither holds it.
	GetReport(ctx context.Context, id string) (*models.Report, error)

	Close() error
}
