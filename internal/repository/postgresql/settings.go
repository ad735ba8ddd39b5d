package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/google/uuid"
)

type settingsRepository struct {
	db *database.DB
}

func NewSettingsRepository(db *database.DB) settings.Repository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) ListTaxBrackets(ctx context.Context, year int) ([]settings.TaxBracket, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id::text, effective_year, bracket_order, min_income, max_income, rate, is_active, created_at, updated_at
		FROM tax_brackets
		WHERE effective_year = $1 AND is_active = TRUE
		ORDER BY bracket_order
	`

	rows, err := q.Query(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax brackets: %w", err)
	}
	defer rows.Close()

	var out []settings.TaxBracket
	for rows.Next() {
		var b settings.TaxBracket
		if err := rows.Scan(&b.ID, &b.EffectiveYear, &b.BracketOrder, &b.MinIncome, &b.MaxIncome, &b.Rate, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tax bracket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tax brackets: %w", err)
	}
	return out, nil
}

func (r *settingsRepository) ListBenefitSettings(ctx context.Context, asOf time.Time) ([]settings.BenefitSetting, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id::text, setting_key, percentage, cap_amount, effective_date, is_active, created_at, updated_at
		FROM benefit_settings
		WHERE is_active = TRUE AND effective_date <= $1
		ORDER BY setting_key, effective_date
	`

	rows, err := q.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list benefit settings: %w", err)
	}
	defer rows.Close()

	var out []settings.BenefitSetting
	for rows.Next() {
		var s settings.BenefitSetting
		if err := rows.Scan(&s.ID, &s.Key, &s.Percentage, &s.CapAmount, &s.EffectiveDate, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan benefit setting: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate benefit settings: %w", err)
	}
	return out, nil
}

func (r *settingsRepository) UpsertTaxBracket(ctx context.Context, b settings.TaxBracket) error {
	q := GetQuerier(ctx, r.db)

	id, err := rowID(b.ID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tax_brackets (id, effective_year, bracket_order, min_income, max_income, rate, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT uk_tax_bracket_year_order DO UPDATE SET
			min_income = EXCLUDED.min_income,
			max_income = EXCLUDED.max_income,
			rate = EXCLUDED.rate,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	if _, err := q.Exec(ctx, query, id, b.EffectiveYear, b.BracketOrder, b.MinIncome, b.MaxIncome, b.Rate, b.IsActive); err != nil {
		return fmt.Errorf("failed to upsert tax bracket: %w", err)
	}
	return nil
}

func (r *settingsRepository) UpsertBenefitSetting(ctx context.Context, s settings.BenefitSetting) error {
	q := GetQuerier(ctx, r.db)

	id, err := rowID(s.ID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO benefit_settings (id, setting_key, percentage, cap_amount, effective_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT uk_benefit_setting_key_date DO UPDATE SET
			percentage = EXCLUDED.percentage,
			cap_amount = EXCLUDED.cap_amount,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	if _, err := q.Exec(ctx, query, id, s.Key, s.Percentage, s.CapAmount, s.EffectiveDate, s.IsActive); err != nil {
		return fmt.Errorf("failed to upsert benefit setting: %w", err)
	}
	return nil
}

// rowID keeps a caller-supplied id or generates a time-ordered one.
func rowID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	v, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return v.String(), nil
}
