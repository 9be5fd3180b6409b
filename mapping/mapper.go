// Package mapping proposes and validates assignments from source CSV columns
// to canonical contact fields.
package mapping

import (
	"fmt"
	"strings"

	"contact-import/common"
)

// Mapping assigns canonical field keys to source column headers. A canonical
// field maps to at most one source header; unmapped fields are simply absent.
type Mapping map[string]string

// AutoDetect proposes a best-guess mapping from the uploaded headers.
//
// Each header is lower-cased and matched against the lower-cased keyword
// hints of each canonical field, in declaration order. The first matching
// header in original column order is assigned; a header assigned to one
// field is never reused for another. The result is a convenience suggestion,
// not a correctness guarantee; callers must allow full manual override.
func AutoDetect(headers []string, specs []FieldSpec) Mapping {
	m := make(Mapping)
	used := make([]bool, len(headers))

	for _, spec := range specs {
		for i, header := range headers {
			if used[i] {
				continue
			}
			if matchesHint(header, spec.Hints) {
				m[spec.Key] = header
				used[i] = true
				break
			}
		}
	}

	return m
}

func matchesHint(header string, hints []string) bool {
	lh := strings.ToLower(header)
	for _, hint := range hints {
		if strings.Contains(lh, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

// Validate checks a user-confirmed mapping against the canonical field specs
// and the uploaded headers. All returned issues are fatal for the mapping.
func (m Mapping) Validate(specs []FieldSpec, headers []string) []common.ValidationError {
	var issues []common.ValidationError

	headerSet := make(map[string]bool, len(headers))
	for _, h := range headers {
		headerSet[h] = true
	}

	// Unknown canonical keys and headers not present in the file
	for key, source := range m {
		if _, ok := FieldByKey(specs, key); !ok {
			issues = append(issues, common.ValidationError{
				Field:   key,
				Message: fmt.Sprintf("unknown canonical field %q", key),
			})
			continue
		}
		if source != "" && !headerSet[source] {
			issues = append(issues, common.ValidationError{
				Field:   key,
				Message: fmt.Sprintf("source column %q is not in the uploaded file", source),
			})
		}
	}

	// Required fields must be mapped to a non-empty source header
	for _, spec := range specs {
		if !spec.Required {
			continue
		}
		if vErr := common.ValidateRequired(spec.Key, m[spec.Key]); vErr != nil {
			issues = append(issues, *vErr)
		}
	}

	// No source header may serve two canonical fields
	seen := make(map[string]string)
	for _, spec := range specs {
		source := m[spec.Key]
		if source == "" {
			continue
		}
		if prior, dup := seen[source]; dup {
			issues = append(issues, common.ValidationError{
				Field:   spec.Key,
				Message: fmt.Sprintf("source column %q is already mapped to %q", source, prior),
			})
			continue
		}
		seen[source] = spec.Key
	}

	return issues
}

// PrimaryHeader returns the source header mapped to the identity field
func (m Mapping) PrimaryHeader(specs []FieldSpec) string {
	return m[PrimaryIdentityKey(specs)]
}
