package settings

import (
	"context"
	"time"
)

// Repository is read-only during calculation. The upserts serve fixture loading.
type Repository interface {
	ListTaxBrackets(ctx context.Context, year int) ([]TaxBracket, error)
	ListBenefitSettings(ctx context.Context, asOf time.Time) ([]BenefitSetting, error)

	UpsertTaxBracket(ctx context.Context, bracket TaxBracket) error
	UpsertBenefitSetting(ctx context.Context, setting BenefitSetting) error
}
