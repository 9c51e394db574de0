package backend

import (
	"context"
	"time"

	"mentorledger/internal/repo"
	"mentorledger/internal/services"
	"mentorledger/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Pinger reports whether the store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult contains the store, its optional collaborators and the
// cleanup that releases them.
type BackendResult struct {
	Store repo.Store
	// Readiness is nil for stores that are always ready.
	Readiness Pinger
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the store selected by config.Type.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateMirror opens the spreadsheet mirror, falling back to an
	// in-memory one when no spreadsheet is configured.
	CreateMirror(ctx context.Context, config Config) (sheets.LedgerMirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP is optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Spreadsheet mirror
	GoogleSpreadsheetID      string
	GoogleLedgerSheetName    string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	// GoogleRowCacheTTL bounds how long the mirror trusts its row index.
	// Zero keeps the client default.
	GoogleRowCacheTTL        time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
