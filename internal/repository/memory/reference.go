package memory

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
)

type FundingSourceRepository struct{ *Store }

func (s *Store) FundingSources() FundingSourceRepository { return FundingSourceRepository{s} }

func (r FundingSourceRepository) Resolve(ctx context.Context, source fundingsource.Source) (fundingsource.Details, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sources[source]
	if !ok {
		return fundingsource.Details{}, fundingsource.ErrFundingSourceNotFound
	}
	return d, nil
}

func (r FundingSourceRepository) Upsert(ctx context.Context, d fundingsource.Details) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[d.Source] = d
	return nil
}

type SettingsRepository struct{ *Store }

func (s *Store) Settings() SettingsRepository { return SettingsRepository{s} }

func (r SettingsRepository) ListTaxBrackets(ctx context.Context, year int) ([]settings.TaxBracket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []settings.TaxBracket
	for _, b := range r.brackets {
		if b.EffectiveYear == year && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r SettingsRepository) ListBenefitSettings(ctx context.Context, asOf time.Time) ([]settings.BenefitSetting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []settings.BenefitSetting
	for _, b := range r.benefits {
		if b.IsActive && !b.EffectiveDate.After(asOf) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r SettingsRepository) UpsertTaxBracket(ctx context.Context, bracket settings.TaxBracket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.brackets {
		if b.EffectiveYear == bracket.EffectiveYear && b.BracketOrder == bracket.BracketOrder {
			r.brackets[i] = bracket
			return nil
		}
	}
	r.brackets = append(r.brackets, bracket)
	return nil
}

func (r SettingsRepository) UpsertBenefitSetting(ctx context.Context, setting settings.BenefitSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.benefits {
		if b.Key == setting.Key && b.EffectiveDate.Equal(setting.EffectiveDate) {
			r.benefits[i] = setting
			return nil
		}
	}
	r.benefits = append(r.benefits, setting)
	return nil
}
