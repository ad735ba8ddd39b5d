package allocation

import (
	"testing"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationSetRequest_Validate(t *testing.T) {
	valid := AllocationSetRequest{
		EffectiveDate: "2024-04-01",
		Allocations: []AllocationInput{
			{SourceType: "grant_item", SourceID: "g-1", FTE: decimal.NewFromInt(60)},
			{SourceType: "org_funded", SourceID: "o-1", FTE: decimal.NewFromInt(40)},
		},
	}
	require.NoError(t, valid.Validate())

	reqs, effective, err := valid.ToRequests()
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", effective.Format(validator.DateLayout))
	assert.Equal(t, fundingsource.GrantItem("g-1"), reqs[0].Source)
	assert.True(t, SumFTE(reqs).Equal(FullTime))

	invalid := AllocationSetRequest{
		EffectiveDate: "04/01/2024",
		Allocations: []AllocationInput{
			{SourceType: "budget", SourceID: "", FTE: decimal.Zero},
		},
	}
	err = invalid.Validate()
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.ToMap()
	assert.Contains(t, fields, "effective_date")
	assert.Contains(t, fields, "allocations[0].source_type")
	assert.Contains(t, fields, "allocations[0].source_id")
	assert.Contains(t, fields, "allocations[0].fte")

	empty := AllocationSetRequest{EffectiveDate: "2024-04-01"}
	require.ErrorAs(t, empty.Validate(), &verrs)
	assert.Contains(t, verrs.ToMap(), "allocations")
}

func TestImbalanceErrorMessage(t *testing.T) {
	err := &AllocationImbalanceError{
		Sum:       decimal.RequireFromString("97.5"),
		Required:  FullTime,
		Tolerance: decimal.RequireFromString("0.01"),
	}
	assert.Equal(t, "total FTE must equal 100%, got 97.5%", err.Error())
	assert.ErrorIs(t, err, ErrAllocationImbalance)
}
