package domain

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// Eligibility thresholds for program applications.
const (
	MinBusinessAgeYears = 3
	MinRevenue          = 1_000_000
)

// cSuiteWords are the title words accepted as a C-suite role.
var cSuiteWords = map[string]bool{
	"ceo": true, "cfo": true, "cto": true, "coo": true, "cmo": true,
	"cio": true, "cso": true, "cro": true, "cpo": true, "evp": true,
	"chief": true, "president": true, "founder": true, "co-founder": true,
	"cofounder": true, "owner": true,
}

// CompanyInfo carries the company facts shown to the scorer.
type CompanyInfo struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty" validate:"omitempty,url"`
	YearFounded int      `json:"yearFounded" yaml:"yearFounded" validate:"required,gte=1800"`
	Revenue     *float64 `json:"revenue,omitempty" yaml:"revenue,omitempty" validate:"omitempty,gte=0"`
	Industry    string   `json:"industry,omitempty" yaml:"industry,omitempty"`
}

// ApplicantInfo identifies the person who submitted an application.
type ApplicantInfo struct {
	FirstName string `json:"firstName" yaml:"firstName" validate:"required"`
	LastName  string `json:"lastName" yaml:"lastName" validate:"required"`
	Title     string `json:"title" yaml:"title" validate:"required"`
	Email     string `json:"email" yaml:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty" yaml:"phone,omitempty"`
}

// FullName returns "First Last".
func (a ApplicantInfo) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// ApplicationSubmission is one applicant's submission. Responses are free
// text keyed by question id.
type ApplicationSubmission struct {
	ID             int64             `json:"id,omitempty" yaml:"id,omitempty"`
	ApplicantID    int64             `json:"applicantId" yaml:"applicantId"`
	OrganizationID int64             `json:"organizationId" yaml:"organizationId"`
	Responses      map[string]string `json:"responses" yaml:"responses" validate:"required"`
	CompanyInfo    CompanyInfo       `json:"companyInfo" yaml:"companyInfo"`
	ApplicantInfo  ApplicantInfo     `json:"applicantInfo" yaml:"applicantInfo"`
	SubmittedAt    *time.Time        `json:"submittedAt,omitempty" yaml:"submittedAt,omitempty"`
}

// Validate checks the submission against its schema.
func (a *ApplicationSubmission) Validate() error {
	return validationErrorFrom("ApplicationSubmission", validate.Struct(a))
}

// QuestionIDs returns the response keys in sorted order.
func (a *ApplicationSubmission) QuestionIDs() []string {
	ids := make([]string, 0, len(a.Responses))
	for id := range a.Responses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ScoringInput is one unit of work for the scorer.
type ScoringInput struct {
	ApplicationID int64                 `json:"applicationId" validate:"required"`
	RubricID      int64                 `json:"rubricId"`
	Application   ApplicationSubmission `json:"application"`
	Rubric        Rubric                `json:"rubric"`
}

// Eligibility is the outcome of the program's deterministic entry checks.
type Eligibility struct {
	BusinessAge int      `json:"businessAge"`
	Revenue     float64  `json:"revenue"`
	CSuiteRole  bool     `json:"cSuiteRole"`
	Eligible    bool     `json:"eligible"`
	Reasons     []string `json:"reasons"`
}

// CheckEligibility reports whether an application meets the entry
// requirements as of now: at least three years in business, at least
// $1M revenue and a C-suite applicant. Reasons lists every failed check.
func CheckEligibility(app ApplicationSubmission, now time.Time) Eligibility {
	e := Eligibility{
		BusinessAge: now.Year() - app.CompanyInfo.YearFounded,
		CSuiteRole:  isCSuite(app.ApplicantInfo.Title),
		Reasons:     []string{},
	}
	if app.CompanyInfo.Revenue != nil {
		e.Revenue = *app.CompanyInfo.Revenue
	}

	if e.BusinessAge < MinBusinessAgeYears {
		e.Reasons = append(e.Reasons, "business must be at least 3 years old")
	}
	if e.Revenue < MinRevenue {
		e.Reasons = append(e.Reasons, "revenue must be at least $1,000,000")
	}
	if !e.CSuiteRole {
		e.Reasons = append(e.Reasons, "applicant must hold a C-suite title")
	}
	e.Eligible = len(e.Reasons) == 0
	return e
}

func isCSuite(title string) bool {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	for _, w := range words {
		if cSuiteWords[w] {
			return true
		}
	}
	return false
}
