package batches

import (
	"encoding/json"
	"errors"
	"time"

	"contact-import/reconcile"

	"gorm.io/gorm"
)

// ErrAlreadyStarted rejects a run request on a batch whose run was already
// dispatched. Dispatch is idempotent, execution is not; retrying means
// creating a new batch from the same file.
var ErrAlreadyStarted = errors.New("batch run already started")

// State is the lifecycle stage of an import batch
type State string

const (
	StateUploaded  State = "uploaded"
	StateMapped    State = "mapped"
	StateValidated State = "validated"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the batch can no longer change
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo enforces the strictly forward lifecycle: no stage is
// skipped and no transition reverses
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateUploaded:
		return next == StateMapped
	case StateMapped:
		return next == StateValidated
	case StateValidated:
		return next == StateRunning
	case StateRunning:
		return next == StateCompleted || next == StateFailed
	}
	return false
}

// RowError records one row's terminal failure
type RowError struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// Results holds the per-batch outcome counters
type Results struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Total sums all terminal outcomes
func (r Results) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Errors
}

// ImportBatch represents one user-initiated import attempt
type ImportBatch struct {
	ID             string `gorm:"primaryKey;type:text" json:"id"`
	IdempotencyKey string `gorm:"index" json:"idempotency_key,omitempty"`
	State          State  `gorm:"not null" json:"state"`
	FileName       string `json:"file_name"`
	FilePath       string `json:"-"`
	SourceHeaders  string `gorm:"type:text" json:"-"` // JSON array, order preserved
	RowCount       int    `gorm:"default:0" json:"row_count"`

	// Mapping and config are set by confirmMapping and immutable once
	// validation starts
	Mapping        string `gorm:"type:text" json:"-"` // JSON canonical->header
	Policy         string `json:"duplicate_policy,omitempty"`
	DefaultCountry string `json:"default_country,omitempty"`
	ValueSeparator string `json:"value_separator,omitempty"`
	StrictMode     bool   `json:"strict_mode"`

	CreatedCount int `gorm:"default:0" json:"-"`
	UpdatedCount int `gorm:"default:0" json:"-"`
	SkippedCount int `gorm:"default:0" json:"-"`
	ErrorCount   int `gorm:"default:0" json:"-"`

	Errors        string `gorm:"type:text" json:"-"` // JSON array of RowError
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ImportBatch) TableName() string { return "import_batches" }

// AutoMigrateBatches creates the batch tracking table
func AutoMigrateBatches(db *gorm.DB) {
	db.AutoMigrate(&ImportBatch{})
}

// Headers returns the stored source headers in file order
func (b *ImportBatch) Headers() []string {
	var headers []string
	if b.SourceHeaders != "" {
		_ = json.Unmarshal([]byte(b.SourceHeaders), &headers)
	}
	return headers
}

// SetHeaders stores the source headers
func (b *ImportBatch) SetHeaders(headers []string) {
	data, _ := json.Marshal(headers)
	b.SourceHeaders = string(data)
}

// MappingMap returns the confirmed column mapping
func (b *ImportBatch) MappingMap() map[string]string {
	m := make(map[string]string)
	if b.Mapping != "" {
		_ = json.Unmarshal([]byte(b.Mapping), &m)
	}
	return m
}

// SetMapping stores the confirmed column mapping
func (b *ImportBatch) SetMapping(m map[string]string) {
	data, _ := json.Marshal(m)
	b.Mapping = string(data)
}

// RowErrors returns the stored row error log
func (b *ImportBatch) RowErrors() []RowError {
	var rowErrors []RowError
	if b.Errors != "" {
		_ = json.Unmarshal([]byte(b.Errors), &rowErrors)
	}
	return rowErrors
}

// SetRowErrors stores the row error log
func (b *ImportBatch) SetRowErrors(rowErrors []RowError) {
	if len(rowErrors) == 0 {
		b.Errors = ""
		return
	}
	data, _ := json.Marshal(rowErrors)
	b.Errors = string(data)
}

// Results returns the current outcome counters
func (b *ImportBatch) Results() Results {
	return Results{
		Created: b.CreatedCount,
		Updated: b.UpdatedCount,
		Skipped: b.SkippedCount,
		Errors:  b.ErrorCount,
	}
}

// ReconcileConfig builds the engine configuration from the stored columns
func (b *ImportBatch) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		Policy:         reconcile.Policy(b.Policy),
		DefaultCountry: b.DefaultCountry,
		ValueSeparator: b.ValueSeparator,
		StrictMode:     b.StrictMode,
	}
}

// SetConfig stores the per-batch reconciliation configuration
func (b *ImportBatch) SetConfig(cfg reconcile.Config) {
	b.Policy = string(cfg.Policy)
	b.DefaultCountry = cfg.DefaultCountry
	b.ValueSeparator = cfg.ValueSeparator
	b.StrictMode = cfg.StrictMode
}
