package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsValidUUID(t *testing.T) {
	valid := []string{
		"0188d0f2-7b8c-7b4a-8a2b-6b8b8b8b8b8b", // valid UUIDv7
		"0188D0F2-7B8C-7B4A-8A2B-6B8B8B8B8B8B", // valid UUIDv7 (uppercase)
	}
	invalid := []string{
		"123e4567-e89b-12d3-a456-426614174000", // not v7
		"0188d0f27b8c7b4a8a2b6b8b8b8b8b8b",     // missing dashes
		"g188d0f2-7b8c-7b4a-8a2b-6b8b8b8b8b8b", // invalid hex
		"",                                     // empty
	}
	for _, id := range valid {
		if !IsValidUUID(id) {
			t.Errorf("IsValidUUID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidUUID(id) {
			t.Errorf("IsValidUUID(%q) = true, want false", id)
		}
	}
}

func TestIsValidDate(t *testing.T) {
	_, ok := IsValidDate("2024-02-29")
	assert.True(t, ok)
	_, ok = IsValidDate("2023-02-29")
	assert.False(t, ok)
	_, ok = IsValidDate("01/02/2024")
	assert.False(t, ok)
}

func TestIsValidPayPeriod(t *testing.T) {
	got, ok := IsValidPayPeriod("2025-03")
	assert.True(t, ok)
	assert.Equal(t, 1, got.Day())
	assert.Equal(t, 3, int(got.Month()))

	_, ok = IsValidPayPeriod("2025-13")
	assert.False(t, ok)
}

func TestIsInRange(t *testing.T) {
	zero, hundred := decimal.Zero, decimal.NewFromInt(100)
	assert.True(t, IsInRange(decimal.NewFromInt(100), zero, hundred))
	assert.True(t, IsInRange(decimal.RequireFromString("0.01"), zero, hundred))
	assert.False(t, IsInRange(zero, zero, hundred))
	assert.False(t, IsInRange(decimal.RequireFromString("100.01"), zero, hundred))
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		{Field: "fte", Message: "must be greater than 0"},
		{Field: "source_id", Message: "is required"},
	}
	assert.Equal(t, "fte: must be greater than 0; source_id: is required", errs.Error())
	assert.Equal(t, "is required", errs.ToMap()["source_id"])
}

func TestIsValidDecimal(t *testing.T) {
	d, ok := IsValidDecimal(" 1500.25 ")
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("1500.25")))
	_, ok = IsValidDecimal("1,500")
	assert.False(t, ok)
}

func TestIsInSlice(t *testing.T) {
	assert.True(t, IsInSlice("year_to_date", []string{"monthly_x12", "year_to_date"}))
	assert.False(t, IsInSlice("annual", []string{"monthly_x12", "year_to_date"}))
	assert.False(t, IsInSlice("x", nil))
}
