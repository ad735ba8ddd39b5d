// Package fixtures loads reference data (tax tables, benefit settings,
// funding sources and employments) from YAML.
package fixtures

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const dateLayout = "2006-01-02"

type Band struct {
	Order int    `yaml:"order"`
	Min   string `yaml:"min"`
	Max   string `yaml:"max"`
	Rate  string `yaml:"rate"`
}

type TaxYear struct {
	Year  int    `yaml:"year"`
	Bands []Band `yaml:"bands"`
}

type Benefit struct {
	Key           string `yaml:"key"`
	Percentage    string `yaml:"percentage"`
	Cap           string `yaml:"cap"`
	EffectiveDate string `yaml:"effective_date"`
}

type Source struct {
	Kind           string `yaml:"kind"`
	ID             string `yaml:"id"`
	OrganizationID string `yaml:"organization_id"`
	Capacity       *int   `yaml:"capacity"`
	StartDate      string `yaml:"start_date"`
	EndDate        string `yaml:"end_date"`
}

type Employment struct {
	ID                  string `yaml:"id"`
	EmployeeID          string `yaml:"employee_id"`
	OrganizationID      string `yaml:"organization_id"`
	StartDate           string `yaml:"start_date"`
	ProbationEndDate    string `yaml:"probation_end_date"`
	ProbationSalary     string `yaml:"probation_salary"`
	PassProbationSalary string `yaml:"pass_probation_salary"`
	SocialSecurity      bool   `yaml:"social_security"`
	HealthWelfare       bool   `yaml:"health_welfare"`
	PVD                 bool   `yaml:"pvd"`
	SavingFund          bool   `yaml:"saving_fund"`
}

// File is the YAML document shape
type File struct {
	Version         int          `yaml:"version"`
	TaxBrackets     []TaxYear    `yaml:"tax_brackets"`
	BenefitSettings []Benefit    `yaml:"benefit_settings"`
	FundingSources  []Source     `yaml:"funding_sources"`
	Employments     []Employment `yaml:"employments"`
}

// Set is a parsed and validated fixture file
type Set struct {
	Brackets       []settings.TaxBracket
	Benefits       []settings.BenefitSetting
	FundingSources []fundingsource.Details
	Employments    []employment.Employment
}

// Defaults returns the embedded reference data
func Defaults() (Set, error) {
	return Parse(defaultsYAML)
}

// LoadFile reads and parses a fixture file from disk
func LoadFile(path string) (Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a fixture document. Bracket tables must be
// contiguous with a single open top band and each benefit key may have only
// one setting per effective date.
func Parse(b []byte) (Set, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Set{}, fmt.Errorf("parse fixtures yaml: %w", err)
	}
	if f.Version != 1 {
		return Set{}, fmt.Errorf("unsupported fixtures version %d", f.Version)
	}

	var set Set
	for _, ty := range f.TaxBrackets {
		brackets, err := ty.toBrackets()
		if err != nil {
			return Set{}, err
		}
		set.Brackets = append(set.Brackets, brackets...)
	}

	seen := make(map[string]struct{})
	for _, raw := range f.BenefitSettings {
		s, err := raw.toSetting()
		if err != nil {
			return Set{}, err
		}
		k := string(s.Key) + "|" + s.EffectiveDate.Format(dateLayout)
		if _, dup := seen[k]; dup {
			return Set{}, fmt.Errorf("%w: %s on %s", settings.ErrDuplicateActiveSetting, s.Key, s.EffectiveDate.Format(dateLayout))
		}
		seen[k] = struct{}{}
		set.Benefits = append(set.Benefits, s)
	}

	for _, raw := range f.FundingSources {
		d, err := raw.toDetails()
		if err != nil {
			return Set{}, err
		}
		set.FundingSources = append(set.FundingSources, d)
	}

	for _, raw := range f.Employments {
		e, err := raw.toEmployment()
		if err != nil {
			return Set{}, err
		}
		set.Employments = append(set.Employments, e)
	}

	return set, nil
}

func (ty TaxYear) toBrackets() ([]settings.TaxBracket, error) {
	out := make([]settings.TaxBracket, 0, len(ty.Bands))
	for _, band := range ty.Bands {
		minIncome, err := money.FromString(band.Min)
		if err != nil {
			return nil, fmt.Errorf("tax year %d band %d: %w", ty.Year, band.Order, err)
		}
		rate, err := decimal.NewFromString(band.Rate)
		if err != nil {
			return nil, fmt.Errorf("tax year %d band %d rate: %w", ty.Year, band.Order, err)
		}
		b := settings.TaxBracket{
			EffectiveYear: ty.Year,
			BracketOrder:  band.Order,
			MinIncome:     minIncome,
			Rate:          rate,
			IsActive:      true,
		}
		if band.Max != "" {
			maxIncome, err := money.FromString(band.Max)
			if err != nil {
				return nil, fmt.Errorf("tax year %d band %d: %w", ty.Year, band.Order, err)
			}
			b.MaxIncome = &maxIncome
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BracketOrder < out[j].BracketOrder })
	if err := settings.ValidateBrackets(out); err != nil {
		return nil, fmt.Errorf("tax year %d: %w", ty.Year, err)
	}
	return out, nil
}

func (raw Benefit) toSetting() (settings.BenefitSetting, error) {
	key := settings.BenefitKey(raw.Key)
	if !key.IsValid() {
		return settings.BenefitSetting{}, fmt.Errorf("%w: %q", settings.ErrUnknownBenefitKey, raw.Key)
	}
	effective, err := parseDate(raw.EffectiveDate)
	if err != nil {
		return settings.BenefitSetting{}, fmt.Errorf("benefit %s: %w", raw.Key, err)
	}

	s := settings.BenefitSetting{Key: key, Percentage: decimal.Zero, EffectiveDate: effective, IsActive: true}
	if key == settings.SocialSecurityCap {
		capAmount, err := money.FromString(raw.Cap)
		if err != nil {
			return settings.BenefitSetting{}, fmt.Errorf("benefit %s cap: %w", raw.Key, err)
		}
		s.CapAmount = &capAmount
		return s, nil
	}

	pct, err := decimal.NewFromString(raw.Percentage)
	if err != nil {
		return settings.BenefitSetting{}, fmt.Errorf("benefit %s percentage: %w", raw.Key, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return settings.BenefitSetting{}, fmt.Errorf("benefit %s percentage %s out of range", raw.Key, pct)
	}
	s.Percentage = pct
	return s, nil
}

func (raw Source) toDetails() (fundingsource.Details, error) {
	src, err := fundingsource.New(fundingsource.Kind(raw.Kind), raw.ID)
	if err != nil {
		return fundingsource.Details{}, fmt.Errorf("funding source %s: %w", raw.ID, err)
	}
	if raw.OrganizationID == "" {
		return fundingsource.Details{}, fmt.Errorf("funding source %s: organization_id is required", raw.ID)
	}
	start, err := parseDate(raw.StartDate)
	if err != nil {
		return fundingsource.Details{}, fmt.Errorf("funding source %s: %w", raw.ID, err)
	}
	d := fundingsource.Details{Source: src, OrganizationID: raw.OrganizationID, Capacity: raw.Capacity, StartDate: start}
	if raw.EndDate != "" {
		end, err := parseDate(raw.EndDate)
		if err != nil {
			return fundingsource.Details{}, fmt.Errorf("funding source %s: %w", raw.ID, err)
		}
		d.EndDate = &end
	}
	return d, nil
}

func (raw Employment) toEmployment() (employment.Employment, error) {
	if raw.ID == "" || raw.OrganizationID == "" {
		return employment.Employment{}, errors.New("employment id and organization_id are required")
	}
	start, err := parseDate(raw.StartDate)
	if err != nil {
		return employment.Employment{}, fmt.Errorf("employment %s: %w", raw.ID, err)
	}
	pass, err := money.FromString(raw.PassProbationSalary)
	if err != nil {
		return employment.Employment{}, fmt.Errorf("employment %s: %w", raw.ID, err)
	}

	e := employment.Employment{
		ID:                  raw.ID,
		EmployeeID:          raw.EmployeeID,
		OrganizationID:      raw.OrganizationID,
		StartDate:           start,
		PassProbationSalary: pass,
		Benefits: employment.Benefits{
			SocialSecurity: raw.SocialSecurity,
			HealthWelfare:  raw.HealthWelfare,
			PVD:            raw.PVD,
			SavingFund:     raw.SavingFund,
		},
		IsActive: true,
	}
	if raw.ProbationEndDate != "" {
		end, err := parseDate(raw.ProbationEndDate)
		if err != nil {
			return employment.Employment{}, fmt.Errorf("employment %s: %w", raw.ID, err)
		}
		e.ProbationEndDate = &end
	}
	if raw.ProbationSalary != "" {
		salary, err := money.FromString(raw.ProbationSalary)
		if err != nil {
			return employment.Employment{}, fmt.Errorf("employment %s: %w", raw.ID, err)
		}
		e.ProbationSalary = &salary
	}
	return e, nil
}

// Target receives a fixture set
type Target struct {
	Settings       settings.Repository
	FundingSources fundingsource.Repository
	Employments    employment.Repository
}

// Counts reports how many rows Apply wrote
type Counts struct {
	Brackets       int
	Benefits       int
	FundingSources int
	Employments    int
}

// Apply upserts reference data and creates employments that do not exist
// yet. Employments already present are left untouched.
func (s Set) Apply(ctx context.Context, t Target) (Counts, error) {
	var c Counts
	for _, b := range s.Brackets {
		if err := t.Settings.UpsertTaxBracket(ctx, b); err != nil {
			return c, err
		}
		c.Brackets++
	}
	for _, b := range s.Benefits {
		if err := t.Settings.UpsertBenefitSetting(ctx, b); err != nil {
			return c, err
		}
		c.Benefits++
	}
	if len(s.FundingSources) > 0 && t.FundingSources == nil {
		return c, errors.New("fixtures contain funding sources but no funding source repository was given")
	}
	for _, d := range s.FundingSources {
		if err := t.FundingSources.Upsert(ctx, d); err != nil {
			return c, err
		}
		c.FundingSources++
	}
	if len(s.Employments) > 0 && t.Employments == nil {
		return c, errors.New("fixtures contain employments but no employment repository was given")
	}
	for _, e := range s.Employments {
		_, err := t.Employments.GetByID(ctx, e.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, employment.ErrEmploymentNotFound) {
			return c, err
		}
		if _, err := t.Employments.Create(ctx, e); err != nil {
			return c, err
		}
		c.Employments++
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
