package mapping

import "contact-import/common"

// FieldSpec declares a canonical contact field the pipeline understands
type FieldSpec struct {
	Key             string   `json:"key"`
	Label           string   `json:"label"`
	Required        bool     `json:"required"`
	PrimaryIdentity bool     `json:"primary_identity"`
	MultiValued     bool     `json:"multi_valued"`
	Hints           []string `json:"-"`

	// Shape reports whether a raw cell value looks plausible for this
	// field. Used only by sampling checks; nil means no shape is declared.
	Shape func(string) bool `json:"-"`
}

// ContactFields returns the canonical field declarations in priority order.
// Earlier fields win auto-detection ties.
func ContactFields() []FieldSpec {
	return []FieldSpec{
		{
			Key:             "email",
			Label:           "Email",
			Required:        true,
			PrimaryIdentity: true,
			Hints:           []string{"email", "e-mail", "mail"},
			Shape:           common.ValidateEmail,
		},
		{
			Key:   "firstname",
			Label: "First Name",
			Hints: []string{"first", "given", "forename"},
		},
		{
			Key:   "lastname",
			Label: "Last Name",
			Hints: []string{"last", "surname", "family"},
		},
		{
			Key:   "company",
			Label: "Company",
			Hints: []string{"company", "organisation", "organization", "employer", "account"},
		},
		{
			Key:         "phone",
			Label:       "Phone",
			MultiValued: true,
			Hints:       []string{"phone", "mobile", "tel", "fax"},
		},
		{
			Key:   "city",
			Label: "City",
			Hints: []string{"city", "town"},
		},
		{
			Key:   "country",
			Label: "Country",
			Hints: []string{"country"},
		},
		{
			Key:   "zip",
			Label: "Postal Code",
			Hints: []string{"zip", "postal", "postcode", "post code"},
		},
	}
}

// FieldByKey looks up a canonical field spec by key
func FieldByKey(specs []FieldSpec, key string) (FieldSpec, bool) {
	for _, s := range specs {
		if s.Key == key {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// PrimaryIdentityKey returns the key of the reconciliation identity field
func PrimaryIdentityKey(specs []FieldSpec) string {
	for _, s := range specs {
		if s.PrimaryIdentity {
			return s.Key
		}
	}
	return ""
}
