package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

const allocationColumns = `
	id::text, employment_id, source_kind, source_id, fte, allocated_amount,
	salary_type, status, start_date, end_date, created_at, updated_at`

type allocationRepository struct {
	db *database.DB
}

func NewAllocationRepository(db *database.DB) allocation.Repository {
	return &allocationRepository{db: db}
}

func scanAllocation(row scanner) (allocation.FundingAllocation, error) {
	var (
		a           allocation.FundingAllocation
		kind, srcID string
	)
	if err := row.Scan(
		&a.ID, &a.EmploymentID, &kind, &srcID, &a.FTE, &a.AllocatedAmount,
		&a.SalaryType, &a.Status, &a.StartDate, &a.EndDate, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return allocation.FundingAllocation{}, err
	}
	src, err := fundingsource.New(fundingsource.Kind(kind), srcID)
	if err != nil {
		return allocation.FundingAllocation{}, fmt.Errorf("allocation %s: %w", a.ID, err)
	}
	a.Source = src
	return a, nil
}

func (r *allocationRepository) ListByEmployment(ctx context.Context, employmentID string) ([]allocation.FundingAllocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM funding_allocations
		WHERE employment_id = $1
		ORDER BY start_date, created_at, id
	`
	return r.list(ctx, query, employmentID)
}

func (r *allocationRepository) ListActiveByEmployment(ctx context.Context, employmentID string) ([]allocation.FundingAllocation, error) {
	// FOR UPDATE pins the set while a transition or replacement rewrites it.
	query := `
		SELECT ` + allocationColumns + `
		FROM funding_allocations
		WHERE employment_id = $1 AND status = 'active'
		ORDER BY created_at, id
		FOR UPDATE
	`
	return r.list(ctx, query, employmentID)
}

func (r *allocationRepository) ListValidOn(ctx context.Context, employmentID string, date time.Time) ([]allocation.FundingAllocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM funding_allocations
		WHERE employment_id = $1
			AND start_date <= $2
			AND (end_date IS NULL OR end_date >= $2)
		ORDER BY created_at, id
	`
	return r.list(ctx, query, employmentID, date)
}

func (r *allocationRepository) list(ctx context.Context, query string, args ...any) ([]allocation.FundingAllocation, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []allocation.FundingAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", err)
	}
	return out, nil
}

func (r *allocationRepository) CountActiveBySource(ctx context.Context, source fundingsource.Source, excludeEmploymentID string, asOf time.Time) (int, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT COUNT(DISTINCT employment_id)
		FROM funding_allocations
		WHERE source_kind = $1 AND source_id = $2 AND status = 'active' AND employment_id <> $3
			AND (end_date IS NULL OR end_date >= $4)
	`

	var n int
	if err := q.QueryRow(ctx, query, source.Kind(), source.ID(), excludeEmploymentID, asOf).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count allocations for %s: %w", source, err)
	}
	return n, nil
}

func (r *allocationRepository) Create(ctx context.Context, a allocation.FundingAllocation) (allocation.FundingAllocation, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO funding_allocations (
			id, employment_id, source_kind, source_id, fte, allocated_amount,
			salary_type, status, start_date, end_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + allocationColumns

	created, err := scanAllocation(q.QueryRow(ctx, query,
		a.ID, a.EmploymentID, a.Source.Kind(), a.Source.ID(), a.FTE, a.AllocatedAmount,
		a.SalaryType, a.Status, a.StartDate, a.EndDate,
	))
	if err != nil {
		return allocation.FundingAllocation{}, fmt.Errorf("failed to create allocation: %w", err)
	}
	return created, nil
}

func (r *allocationRepository) UpdateStatus(ctx context.Context, id string, status allocation.Status, endDate time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE funding_allocations
		SET status = $2, end_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	tag, err := q.Exec(ctx, query, id, status, endDate)
	if err != nil {
		return fmt.Errorf("failed to update allocation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return allocation.ErrAllocationNotFound
	}
	return nil
}

func (r *allocationRepository) CloseWindow(ctx context.Context, id string, endDate time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `UPDATE funding_allocations SET end_date = $2, updated_at = NOW() WHERE id = $1`, id, endDate)
	if err != nil {
		return fmt.Errorf("failed to close allocation window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return allocation.ErrAllocationNotFound
	}
	return nil
}

type fundingSourceRepository struct {
	db *database.DB
}

func NewFundingSourceRepository(db *database.DB) fundingsource.Repository {
	return &fundingSourceRepository{db: db}
}

func (r *fundingSourceRepository) Resolve(ctx context.Context, source fundingsource.Source) (fundingsource.Details, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT organization_id, capacity, start_date, end_date
		FROM funding_sources
		WHERE source_kind = $1 AND source_id = $2
	`

	d := fundingsource.Details{Source: source}
	err := q.QueryRow(ctx, query, source.Kind(), source.ID()).Scan(&d.OrganizationID, &d.Capacity, &d.StartDate, &d.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fundingsource.Details{}, fmt.Errorf("%w: %s", fundingsource.ErrFundingSourceNotFound, source)
		}
		return fundingsource.Details{}, fmt.Errorf("failed to resolve funding source: %w", err)
	}
	return d, nil
}

// LockSource row-locks the funding source until the surrounding transaction
// ends. A missing row is left for Resolve to report.
func (r *fundingSourceRepository) LockSource(ctx context.Context, source fundingsource.Source) error {
	q := GetQuerier(ctx, r.db)

	var one int
	err := q.QueryRow(ctx, `
		SELECT 1 FROM funding_sources
		WHERE source_kind = $1 AND source_id = $2
		FOR UPDATE
	`, source.Kind(), source.ID()).Scan(&one)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return nil
}

func (r *fundingSourceRepository) Upsert(ctx context.Context, d fundingsource.Details) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO funding_sources (source_kind, source_id, organization_id, capacity, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_kind, source_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			capacity = EXCLUDED.capacity,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
	`

	if _, err := q.Exec(ctx, query, d.Source.Kind(), d.Source.ID(), d.OrganizationID, d.Capacity, d.StartDate, d.EndDate); err != nil {
		return fmt.Errorf("failed to upsert funding source: %w", err)
	}
	return nil
}
