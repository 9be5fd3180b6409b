package batches

import (
	"fmt"
	"strings"

	"contact-import/mapping"
	"contact-import/parsers"
	"contact-import/reconcile"
)

// Issue severities
type Severity string

const (
	// SeverityFatal blocks the transition to the validated state
	SeverityFatal Severity = "fatal"
	// SeverityWarning is advisory: row-level failures are still reported
	// individually during the run
	SeverityWarning Severity = "warning"
)

// Issue codes
const (
	CodeMappingIncomplete = "mapping_incomplete"
	CodeDuplicateMapping  = "duplicate_mapping"
	CodeInvalidPolicy     = "invalid_policy"
	CodeShapeMismatch     = "shape_mismatch"
)

// Issue is one finding from batch validation
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// ValidationReport is the result of validating a mapped batch
type ValidationReport struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// HasFatal reports whether any issue blocks stage advance
func (r ValidationReport) HasFatal() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Blocks reports whether the validated transition must be refused. In strict
// mode warnings block too.
func (r ValidationReport) Blocks(strict bool) bool {
	if r.HasFatal() {
		return true
	}
	if strict {
		return len(r.Issues) > 0
	}
	return false
}

// ValidateBatch checks a mapped batch before it may advance to validated.
//
// Structural checks never read row data; sampling checks read at most
// sampleSize rows and emit warnings when a mapped field's shape-check
// failure ratio exceeds warnThreshold. Deterministic for an unchanged
// batch, so re-validation yields the same report.
func ValidateBatch(batch *ImportBatch, doc *parsers.Document, sampleSize int, warnThreshold float64) ValidationReport {
	specs := mapping.ContactFields()
	m := mapping.Mapping(batch.MappingMap())

	var issues []Issue

	// Structural: the frozen batch configuration carries a known policy
	if policy := reconcile.Policy(batch.Policy); !policy.IsValid() {
		issues = append(issues, Issue{
			Severity: SeverityFatal,
			Code:     CodeInvalidPolicy,
			Field:    "duplicate_policy",
			Message:  fmt.Sprintf("unknown duplicate policy %q", batch.Policy),
		})
	}

	// Structural: required canonical fields mapped (the primary identity
	// field is required, so this covers the identity invariant as well)
	for _, spec := range specs {
		if spec.Required && strings.TrimSpace(m[spec.Key]) == "" {
			issues = append(issues, Issue{
				Severity: SeverityFatal,
				Code:     CodeMappingIncomplete,
				Field:    spec.Key,
				Message:  fmt.Sprintf("required field %q is not mapped", spec.Key),
			})
		}
	}

	// Structural: no source header assigned to two canonical fields
	seen := make(map[string]string)
	for _, spec := range specs {
		source := m[spec.Key]
		if source == "" {
			continue
		}
		if prior, dup := seen[source]; dup {
			issues = append(issues, Issue{
				Severity: SeverityFatal,
				Code:     CodeDuplicateMapping,
				Field:    spec.Key,
				Message:  fmt.Sprintf("source column %q is already mapped to %q", source, prior),
			})
			continue
		}
		seen[source] = spec.Key
	}

	// Sampling: bounded shape checks over the first rows only. A failing
	// ratio is an early warning, not a gate.
	if doc != nil {
		sample := doc.Rows
		if sampleSize > 0 && len(sample) > sampleSize {
			sample = sample[:sampleSize]
		}

		for _, spec := range specs {
			source := m[spec.Key]
			if source == "" || spec.Shape == nil || len(sample) == 0 {
				continue
			}

			failures := 0
			for _, row := range sample {
				if !spec.Shape(strings.TrimSpace(row[source])) {
					failures++
				}
			}

			ratio := float64(failures) / float64(len(sample))
			if ratio > warnThreshold {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Code:     CodeShapeMismatch,
					Field:    spec.Key,
					Message: fmt.Sprintf("%d of %d sampled rows have an implausible %s value in column %q",
						failures, len(sample), spec.Key, source),
				})
			}
		}
	}

	report := ValidationReport{Issues: issues}
	report.OK = !report.HasFatal()
	return report
}
