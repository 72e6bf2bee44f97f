package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// InjectionCheckResult describes seed text that libinjection recognizes as a
// SQL injection pattern.
type InjectionCheckResult struct {
	Field       string // e.g. question#3.text
	Value       string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckTextForInjection returns nil when value does not look like SQL
// injection.
func CheckTextForInjection(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckSeedRun scans every user-supplied text in a run. Flagged texts are
// still seeded: rendered scripts quote every literal, so this only feeds the
// security audit log.
func CheckSeedRun(run *models.SeedRun) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	check := func(ref models.Ref, field, value string) {
		if value == "" {
			return
		}
		if r := CheckTextForInjection(ref.String()+"."+field, value); r != nil {
			results = append(results, r)
		}
	}

	for _, e := range run.JobPositions() {
		check(e.Ref, "title", e.JobPosition.Title())
		check(e.Ref, "description", e.JobPosition.Description())
	}
	for _, e := range run.QuestionBanks() {
		check(e.Ref, "name", e.QuestionBank.Name())
	}
	for _, e := range run.Questions() {
		check(e.Ref, "text", e.Question.Text())
	}
	for _, e := range run.Options() {
		check(e.Ref, "text", e.Option.Text())
	}
	return results
}
