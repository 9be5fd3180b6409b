// Package reconcile decides, row by row, how incoming contact data meets the
// contact store: create a new record, update an existing one, or skip.
package reconcile

import (
	"errors"
	"strings"

	"contact-import/common"
	"contact-import/contacts"
	"contact-import/mapping"
	"contact-import/parsers"
)

// Policy is the duplicate-resolution rule applied when a row's identity
// already exists in the store
type Policy string

const (
	// PolicyCreateOnly skips rows whose identity already exists
	PolicyCreateOnly Policy = "create_only"
	// PolicyUpdateExisting merges mapped fields into the existing record
	PolicyUpdateExisting Policy = "update_existing"
	// PolicyCreateDuplicate always creates, even on an identity match.
	// Intentional escape hatch; kept as documented user-facing behavior.
	PolicyCreateDuplicate Policy = "create_duplicate"
)

// IsValid checks if the policy is one of the supported values
func (p Policy) IsValid() bool {
	switch p {
	case PolicyCreateOnly, PolicyUpdateExisting, PolicyCreateDuplicate:
		return true
	}
	return false
}

// Policies returns all supported policy values
func Policies() []string {
	return []string{
		string(PolicyCreateOnly),
		string(PolicyUpdateExisting),
		string(PolicyCreateDuplicate),
	}
}

// Config is the per-batch reconciliation configuration, immutable once
// validation starts
type Config struct {
	Policy         Policy `json:"duplicate_policy"`
	DefaultCountry string `json:"default_country"`
	ValueSeparator string `json:"value_separator"`
	StrictMode     bool   `json:"strict_mode"`
}

// OutcomeKind classifies the terminal decision for one row
type OutcomeKind string

const (
	OutcomeCreate OutcomeKind = "create"
	OutcomeUpdate OutcomeKind = "update"
	OutcomeSkip   OutcomeKind = "skip"
	OutcomeError  OutcomeKind = "error"
)

// Outcome is the per-row reconciliation decision
type Outcome struct {
	Kind       OutcomeKind
	ExistingID string // set for OutcomeUpdate
	Reason     string // set for OutcomeSkip and OutcomeError
}

// Row-scoped outcome reasons
const (
	ReasonMissingIdentity = "missing_identity"
	ReasonAlreadyExists   = "already_exists"
)

// Resolve decides the outcome for one row under the active policy.
//
// The only side effect is the identity lookup against the store; the
// returned error is non-nil solely for infrastructure-level store failures,
// which the caller must treat as batch-fatal.
func Resolve(record parsers.Record, m mapping.Mapping, cfg Config, store contacts.Store) (Outcome, error) {
	specs := mapping.ContactFields()
	identityHeader := m.PrimaryHeader(specs)

	email := NormalizeEmail(record[identityHeader])
	if !common.ValidateEmail(email) {
		return Outcome{Kind: OutcomeError, Reason: ReasonMissingIdentity}, nil
	}

	existingID, err := store.FindByEmail(email)
	if err != nil && !errors.Is(err, contacts.ErrNotFound) {
		return Outcome{}, err
	}
	found := err == nil

	switch cfg.Policy {
	case PolicyCreateOnly:
		if found {
			return Outcome{Kind: OutcomeSkip, Reason: ReasonAlreadyExists}, nil
		}
		return Outcome{Kind: OutcomeCreate}, nil
	case PolicyUpdateExisting:
		if found {
			return Outcome{Kind: OutcomeUpdate, ExistingID: existingID}, nil
		}
		return Outcome{Kind: OutcomeCreate}, nil
	case PolicyCreateDuplicate:
		return Outcome{Kind: OutcomeCreate}, nil
	}

	return Outcome{Kind: OutcomeError, Reason: "unknown_policy"}, nil
}

// ExtractFields builds the canonical field map handed to the store: mapped
// fields only, identity normalized, multi-valued fields split on the
// configured separator with empty segments dropped.
func ExtractFields(record parsers.Record, m mapping.Mapping, cfg Config) map[string]string {
	specs := mapping.ContactFields()
	fields := make(map[string]string, len(m))

	for _, spec := range specs {
		source, ok := m[spec.Key]
		if !ok || source == "" {
			continue
		}
		value := strings.TrimSpace(record[source])

		switch {
		case spec.PrimaryIdentity:
			value = NormalizeEmail(value)
		case spec.MultiValued:
			value = strings.Join(splitMultiValue(value, cfg), ";")
		}

		fields[spec.Key] = value
	}

	return fields
}

func splitMultiValue(value string, cfg Config) []string {
	sep := cfg.ValueSeparator
	if sep == "" {
		sep = ","
	}

	var out []string
	for _, part := range strings.Split(value, sep) {
		normalized := NormalizePhone(part, cfg.DefaultCountry)
		if normalized == "" {
			continue
		}
		out = append(out, normalized)
	}
	return out
}

// NormalizeEmail trims and lower-cases an identity value
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone strips formatting characters and applies the batch's
// default country code to national-format numbers
func NormalizePhone(raw, defaultCountry string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '.', '(', ')', '/':
			continue
		}
		b.WriteRune(r)
	}
	number := b.String()
	if number == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(number, "+"):
		return number
	case strings.HasPrefix(number, "00"):
		return "+" + number[2:]
	case strings.HasPrefix(number, "0") && defaultCountry != "":
		return "+" + defaultCountry + number[1:]
	}
	return number
}
