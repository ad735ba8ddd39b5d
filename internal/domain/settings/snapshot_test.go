package settings

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) *money.Money {
	m := money.MustParse(s)
	return &m
}

func bracketTable(year int) []TaxBracket {
	return []TaxBracket{
		{ID: "b1", EffectiveYear: year, BracketOrder: 1, MinIncome: money.Zero(), MaxIncome: amount("150000"), Rate: decimal.Zero, IsActive: true},
		{ID: "b2", EffectiveYear: year, BracketOrder: 2, MinIncome: money.FromInt(150000), MaxIncome: amount("300000"), Rate: decimal.NewFromInt(5), IsActive: true},
		{ID: "b3", EffectiveYear: year, BracketOrder: 3, MinIncome: money.FromInt(300000), MaxIncome: nil, Rate: decimal.NewFromInt(10), IsActive: true},
	}
}

func TestValidateBrackets(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		assert.NoError(t, ValidateBrackets(bracketTable(2024)))
	})

	t.Run("gap between bands", func(t *testing.T) {
		b := bracketTable(2024)
		b[1].MinIncome = money.FromInt(150001)
		assert.ErrorIs(t, ValidateBrackets(b), ErrInvalidBrackets)
	})

	t.Run("no open top band", func(t *testing.T) {
		b := bracketTable(2024)
		b[2].MaxIncome = amount("900000")
		assert.ErrorIs(t, ValidateBrackets(b), ErrInvalidBrackets)
	})

	t.Run("open band in the middle", func(t *testing.T) {
		b := bracketTable(2024)
		b[1].MaxIncome = nil
		assert.ErrorIs(t, ValidateBrackets(b), ErrInvalidBrackets)
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, ValidateBrackets(nil), ErrInvalidBrackets)
	})
}

func TestSnapshot_BracketsFor(t *testing.T) {
	table := bracketTable(2024)
	// Shuffle order to check sorting
	table[0], table[2] = table[2], table[0]
	table = append(table, TaxBracket{ID: "old", EffectiveYear: 2024, BracketOrder: 9, IsActive: false})

	snap, err := NewSnapshot(date("2024-03-01"), table, nil)
	require.NoError(t, err)

	brackets, err := snap.BracketsFor(2024)
	require.NoError(t, err)
	require.Len(t, brackets, 3)
	assert.Equal(t, "b1", brackets[0].ID)
	assert.Equal(t, "b3", brackets[2].ID)

	_, err = snap.BracketsFor(2025)
	var noBrackets *NoBracketsConfiguredError
	require.ErrorAs(t, err, &noBrackets)
	assert.Equal(t, 2025, noBrackets.Year)
	assert.ErrorIs(t, err, ErrNoBracketsConfigured)
}

func TestSnapshot_EffectiveDatedSettings(t *testing.T) {
	benefits := []BenefitSetting{
		{Key: PVDEmployeeRate, Percentage: decimal.NewFromInt(3), EffectiveDate: date("2023-01-01"), IsActive: true},
		{Key: PVDEmployeeRate, Percentage: decimal.NewFromInt(5), EffectiveDate: date("2024-01-01"), IsActive: true},
		{Key: PVDEmployeeRate, Percentage: decimal.NewFromInt(7), EffectiveDate: date("2024-07-01"), IsActive: true},
		{Key: PVDEmployerRate, Percentage: decimal.NewFromInt(9), EffectiveDate: date("2024-01-01"), IsActive: false},
		{Key: SocialSecurityCap, CapAmount: amount("750"), EffectiveDate: date("2020-01-01"), IsActive: true},
	}

	t.Run("historical run sees the setting of its own date", func(t *testing.T) {
		snap, err := NewSnapshot(date("2024-03-31"), nil, benefits)
		require.NoError(t, err)

		pct, err := snap.Percentage(PVDEmployeeRate)
		require.NoError(t, err)
		assert.True(t, pct.Equal(decimal.NewFromInt(5)))
	})

	t.Run("later date sees the newer setting", func(t *testing.T) {
		snap, err := NewSnapshot(date("2024-08-01"), nil, benefits)
		require.NoError(t, err)

		pct, err := snap.Percentage(PVDEmployeeRate)
		require.NoError(t, err)
		assert.True(t, pct.Equal(decimal.NewFromInt(7)))
	})

	t.Run("inactive settings are missing", func(t *testing.T) {
		snap, err := NewSnapshot(date("2024-08-01"), nil, benefits)
		require.NoError(t, err)

		_, err = snap.Percentage(PVDEmployerRate)
		var missing *NoActiveSettingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, PVDEmployerRate, missing.Key)
		assert.ErrorIs(t, err, ErrNoActiveSetting)
	})

	t.Run("cap amount", func(t *testing.T) {
		snap, err := NewSnapshot(date("2024-08-01"), nil, benefits)
		require.NoError(t, err)

		c, err := snap.Cap(SocialSecurityCap)
		require.NoError(t, err)
		assert.Equal(t, "750.00", c.String())

		_, err = snap.Cap(PVDEmployeeRate)
		assert.ErrorIs(t, err, ErrNoActiveSetting)
	})

	t.Run("two active settings on the same date", func(t *testing.T) {
		dup := append([]BenefitSetting{}, benefits...)
		dup = append(dup, BenefitSetting{Key: PVDEmployeeRate, Percentage: decimal.NewFromInt(4), EffectiveDate: date("2024-01-01"), IsActive: true})

		_, err := NewSnapshot(date("2024-03-31"), nil, dup)
		assert.ErrorIs(t, err, ErrDuplicateActiveSetting)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := NewSnapshot(date("2024-03-31"), nil, []BenefitSetting{
			{Key: "meal_allowance", EffectiveDate: date("2024-01-01"), IsActive: true},
		})
		assert.ErrorIs(t, err, ErrUnknownBenefitKey)
	})
}
