package payroll

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLine() PayrollLine {
	return PayrollLine{
		ID:                     "line-1",
		GrossByFTE:             money.MustParse("18000.00"),
		ThirteenthMonth:        money.MustParse("1500.00"),
		Bonus:                  money.MustParse("200.00"),
		Tax:                    money.MustParse("412.50"),
		SocialSecurityEmployee: money.MustParse("450.00"),
		SocialSecurityEmployer: money.MustParse("450.00"),
		HealthWelfareEmployee:  money.MustParse("90.00"),
		PVDEmployee:            money.MustParse("540.00"),
		PVDEmployer:            money.MustParse("540.00"),
		SavingFundEmployee:     money.MustParse("0.00"),
		Status:                 LineStatusPosted,
	}
}

func TestComputeNet(t *testing.T) {
	l := sampleLine()
	assert.Equal(t, "1492.50", l.EmployeeDeductions().String())
	assert.Equal(t, "1700.00", l.EmployerAdditions().String())
	// 18000 + 1700 - 1492.50; employer contributions never reach net
	assert.Equal(t, "18207.50", l.ComputeNet().String())
}

func TestReversal(t *testing.T) {
	l := sampleLine()
	l.NetSalary = l.ComputeNet()
	l.TotalDeductions = l.EmployeeDeductions()
	l.NeedsInterOrgAdvance = true

	r := l.Reversal("line-2", "batch-9")
	require.NotNil(t, r.ReversalOf)
	assert.Equal(t, "line-1", *r.ReversalOf)
	assert.Equal(t, LineStatusReversal, r.Status)
	assert.False(t, r.NeedsInterOrgAdvance)
	assert.True(t, r.GrossByFTE.Add(l.GrossByFTE).IsZero())
	assert.True(t, r.NetSalary.Add(l.NetSalary).IsZero())
	assert.True(t, r.PVDEmployer.Add(l.PVDEmployer).IsZero())
	assert.True(t, r.ComputeNet().Equal(r.NetSalary))
}

func TestPeriodBounds(t *testing.T) {
	mid := time.Date(2024, 2, 17, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), PeriodStart(mid))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), PeriodEnd(mid))
}
