package settings

import (
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of the reference configuration in effect on
// one date. Calculators receive it explicitly so historical runs replay
// against the settings of their own pay period.
type Snapshot struct {
	asOf     time.Time
	brackets map[int][]TaxBracket
	benefits map[BenefitKey]BenefitSetting
}

// NewSnapshot keeps active brackets grouped by year and, per key, the active
// benefit setting with the latest effective date not after asOf.
func NewSnapshot(asOf time.Time, brackets []TaxBracket, benefits []BenefitSetting) (*Snapshot, error) {
	s := &Snapshot{
		asOf:     asOf,
		brackets: make(map[int][]TaxBracket),
		benefits: make(map[BenefitKey]BenefitSetting),
	}

	for _, b := range brackets {
		if !b.IsActive {
			continue
		}
		s.brackets[b.EffectiveYear] = append(s.brackets[b.EffectiveYear], b)
	}
	for year := range s.brackets {
		sort.SliceStable(s.brackets[year], func(i, j int) bool {
			return s.brackets[year][i].BracketOrder < s.brackets[year][j].BracketOrder
		})
	}

	for _, b := range benefits {
		if !b.IsActive || b.EffectiveDate.After(asOf) {
			continue
		}
		if !b.Key.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBenefitKey, b.Key)
		}
		current, ok := s.benefits[b.Key]
		switch {
		case !ok, b.EffectiveDate.After(current.EffectiveDate):
			s.benefits[b.Key] = b
		case b.EffectiveDate.Equal(current.EffectiveDate):
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateActiveSetting, b.Key, b.EffectiveDate.Format("2006-01-02"))
		}
	}

	return s, nil
}

func (s *Snapshot) AsOf() time.Time {
	return s.asOf
}

// BracketsFor returns the validated bracket table for year in bracket order.
func (s *Snapshot) BracketsFor(year int) ([]TaxBracket, error) {
	brackets, ok := s.brackets[year]
	if !ok || len(brackets) == 0 {
		return nil, &NoBracketsConfiguredError{Year: year}
	}
	if err := ValidateBrackets(brackets); err != nil {
		return nil, err
	}
	out := make([]TaxBracket, len(brackets))
	copy(out, brackets)
	return out, nil
}

// Setting returns the benefit setting in effect for key.
func (s *Snapshot) Setting(key BenefitKey) (BenefitSetting, error) {
	b, ok := s.benefits[key]
	if !ok {
		return BenefitSetting{}, &NoActiveSettingError{Key: key, AsOf: s.asOf}
	}
	return b, nil
}

func (s *Snapshot) Percentage(key BenefitKey) (decimal.Decimal, error) {
	b, err := s.Setting(key)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Percentage, nil
}

// Cap returns the capped amount for key. A setting without an amount counts as missing.
func (s *Snapshot) Cap(key BenefitKey) (money.Money, error) {
	b, err := s.Setting(key)
	if err != nil {
		return money.Zero(), err
	}
	if b.CapAmount == nil {
		return money.Zero(), &NoActiveSettingError{Key: key, AsOf: s.asOf}
	}
	return *b.CapAmount, nil
}

// ValidateBrackets checks brackets sorted by BracketOrder: ranges are contiguous,
// each closed band has max above min, and only the last band is open.
func ValidateBrackets(brackets []TaxBracket) error {
	if len(brackets) == 0 {
		return ErrInvalidBrackets
	}

	hundred := decimal.NewFromInt(100)
	for i, b := range brackets {
		if b.MinIncome.IsNegative() {
			return fmt.Errorf("%w: bracket %d has negative min income", ErrInvalidBrackets, b.BracketOrder)
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(hundred) {
			return fmt.Errorf("%w: bracket %d rate %s out of range", ErrInvalidBrackets, b.BracketOrder, b.Rate)
		}
		if i > 0 && brackets[i-1].BracketOrder == b.BracketOrder {
			return fmt.Errorf("%w: duplicate bracket order %d", ErrInvalidBrackets, b.BracketOrder)
		}

		last := i == len(brackets)-1
		if b.MaxIncome == nil {
			if !last {
				return fmt.Errorf("%w: bracket %d is open but not the top band", ErrInvalidBrackets, b.BracketOrder)
			}
			continue
		}
		if last {
			return fmt.Errorf("%w: top band %d must have no max income", ErrInvalidBrackets, b.BracketOrder)
		}
		if !b.MaxIncome.GreaterThan(b.MinIncome) {
			return fmt.Errorf("%w: bracket %d max must exceed min", ErrInvalidBrackets, b.BracketOrder)
		}
		if next := brackets[i+1]; !next.MinIncome.Equal(*b.MaxIncome) {
			return fmt.Errorf("%w: gap or overlap between bracket %d and %d", ErrInvalidBrackets, b.BracketOrder, next.BracketOrder)
		}
	}
	return nil
}
