package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoDetect_BasicHeaders(t *testing.T) {
	headers := []string{"Email", "First Name", "Company"}

	m := AutoDetect(headers, ContactFields())

	assert.Equal(t, "Email", m["email"])
	assert.Equal(t, "First Name", m["firstname"])
	assert.Equal(t, "Company", m["company"])
	assert.NotContains(t, m, "lastname")
}

func TestAutoDetect_FirstColumnWins(t *testing.T) {
	// Both headers match the email hints; the earlier column is assigned
	m := AutoDetect([]string{"Work Email", "Email"}, ContactFields())
	assert.Equal(t, "Work Email", m["email"])
}

func TestAutoDetect_HeaderNotReused(t *testing.T) {
	// "Family First" matches hints for both firstname and lastname;
	// firstname is declared earlier, so it wins and lastname stays unmapped
	m := AutoDetect([]string{"Family First"}, ContactFields())

	assert.Equal(t, "Family First", m["firstname"])
	assert.NotContains(t, m, "lastname")
}

func TestAutoDetect_CaseInsensitive(t *testing.T) {
	m := AutoDetect([]string{"E-MAIL ADDRESS", "MOBILE"}, ContactFields())

	assert.Equal(t, "E-MAIL ADDRESS", m["email"])
	assert.Equal(t, "MOBILE", m["phone"])
}

func TestAutoDetect_NoMatches(t *testing.T) {
	m := AutoDetect([]string{"colA", "colB"}, ContactFields())
	assert.Empty(t, m)
}

func TestValidate_OK(t *testing.T) {
	headers := []string{"Email", "First Name"}
	m := Mapping{"email": "Email", "firstname": "First Name"}

	issues := m.Validate(ContactFields(), headers)
	assert.Empty(t, issues)
}

func TestValidate_RequiredFieldUnmapped(t *testing.T) {
	m := Mapping{"firstname": "First Name"}

	issues := m.Validate(ContactFields(), []string{"First Name"})
	require.NotEmpty(t, issues)

	found := false
	for _, issue := range issues {
		if issue.Field == "email" {
			found = true
		}
	}
	assert.True(t, found, "missing email mapping should be reported")
}

func TestValidate_DuplicateSourceHeader(t *testing.T) {
	m := Mapping{"email": "Email", "firstname": "Email"}

	issues := m.Validate(ContactFields(), []string{"Email"})
	require.NotEmpty(t, issues)

	found := false
	for _, issue := range issues {
		if issue.Field == "firstname" {
			found = true
		}
	}
	assert.True(t, found, "duplicate source column should be reported against the later field")
}

func TestValidate_UnknownCanonicalField(t *testing.T) {
	m := Mapping{"email": "Email", "nickname": "Nick"}

	issues := m.Validate(ContactFields(), []string{"Email", "Nick"})
	require.NotEmpty(t, issues)
	assert.Equal(t, "nickname", issues[0].Field)
}

func TestValidate_SourceHeaderNotInFile(t *testing.T) {
	m := Mapping{"email": "Email", "company": "Employer"}

	issues := m.Validate(ContactFields(), []string{"Email"})
	require.Len(t, issues, 1)
	assert.Equal(t, "company", issues[0].Field)
}

func TestPrimaryHeader(t *testing.T) {
	m := Mapping{"email": "Email Address"}
	assert.Equal(t, "Email Address", m.PrimaryHeader(ContactFields()))
}
