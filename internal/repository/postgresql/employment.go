package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// scanner is satisfied by pgx.Row and pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

const employmentColumns = `
	id, employee_id, organization_id, start_date, end_date, probation_end_date,
	probation_salary, pass_probation_salary,
	social_security, health_welfare, pvd, saving_fund,
	is_active, version, created_at, updated_at`

type employmentRepository struct {
	db *database.DB
}

func NewEmploymentRepository(db *database.DB) employment.Repository {
	return &employmentRepository{db: db}
}

func scanEmployment(row scanner) (employment.Employment, error) {
	var e employment.Employment
	err := row.Scan(
		&e.ID, &e.EmployeeID, &e.OrganizationID, &e.StartDate, &e.EndDate, &e.ProbationEndDate,
		&e.ProbationSalary, &e.PassProbationSalary,
		&e.Benefits.SocialSecurity, &e.Benefits.HealthWelfare, &e.Benefits.PVD, &e.Benefits.SavingFund,
		&e.IsActive, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *employmentRepository) GetByID(ctx context.Context, id string) (employment.Employment, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + employmentColumns + ` FROM employments WHERE id = $1`

	e, err := scanEmployment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return employment.Employment{}, employment.ErrEmploymentNotFound
		}
		return employment.Employment{}, fmt.Errorf("failed to get employment: %w", err)
	}
	return e, nil
}

func (r *employmentRepository) ListByIDs(ctx context.Context, ids []string) ([]employment.Employment, error) {
	query := `SELECT ` + employmentColumns + ` FROM employments WHERE id = ANY($1) ORDER BY id`
	return r.list(ctx, query, ids)
}

func (r *employmentRepository) ListProbationEndingOn(ctx context.Context, date time.Time) ([]employment.Employment, error) {
	query := `
		SELECT ` + employmentColumns + `
		FROM employments
		WHERE probation_end_date = $1 AND (end_date IS NULL OR end_date > probation_end_date)
		ORDER BY id
	`
	return r.list(ctx, query, date)
}

func (r *employmentRepository) ListActiveInPeriod(ctx context.Context, start, end time.Time) ([]employment.Employment, error) {
	query := `
		SELECT ` + employmentColumns + `
		FROM employments
		WHERE is_active = TRUE
			AND start_date <= $2
			AND (end_date IS NULL OR end_date >= $1)
		ORDER BY id
	`
	return r.list(ctx, query, start, end)
}

func (r *employmentRepository) list(ctx context.Context, query string, args ...any) ([]employment.Employment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employments: %w", err)
	}
	defer rows.Close()

	var out []employment.Employment
	for rows.Next() {
		e, err := scanEmployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employments: %w", err)
	}
	return out, nil
}

func (r *employmentRepository) Create(ctx context.Context, e employment.Employment) (employment.Employment, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO employments (
			id, employee_id, organization_id, start_date, end_date, probation_end_date,
			probation_salary, pass_probation_salary,
			social_security, health_welfare, pvd, saving_fund, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + employmentColumns

	created, err := scanEmployment(q.QueryRow(ctx, query,
		e.ID, e.EmployeeID, e.OrganizationID, e.StartDate, e.EndDate, e.ProbationEndDate,
		e.ProbationSalary, e.PassProbationSalary,
		e.Benefits.SocialSecurity, e.Benefits.HealthWelfare, e.Benefits.PVD, e.Benefits.SavingFund, e.IsActive,
	))
	if err != nil {
		return employment.Employment{}, fmt.Errorf("failed to create employment: %w", err)
	}
	return created, nil
}

func (r *employmentRepository) SetEndDate(ctx context.Context, id string, endDate time.Time, version int64) (employment.Employment, error) {
	return r.update(ctx, `end_date = $3`, id, version, endDate)
}

func (r *employmentRepository) SetProbationEndDate(ctx context.Context, id string, probationEndDate time.Time, version int64) (employment.Employment, error) {
	return r.update(ctx, `probation_end_date = $3`, id, version, probationEndDate)
}

// update applies set when the row still carries version, bumping it.
func (r *employmentRepository) update(ctx context.Context, set, id string, version int64, value time.Time) (employment.Employment, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE employments
		SET ` + set + `, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + employmentColumns

	e, err := scanEmployment(q.QueryRow(ctx, query, id, version, value))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return employment.Employment{}, fmt.Errorf("failed to update employment: %w", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM employments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return employment.Employment{}, fmt.Errorf("failed to check employment: %w", err)
	}
	if !exists {
		return employment.Employment{}, employment.ErrEmploymentNotFound
	}
	return employment.Employment{}, employment.ErrVersionConflict
}

type probationEventRepository struct {
	db *database.DB
}

func NewProbationEventRepository(db *database.DB) employment.ProbationEventRepository {
	return &probationEventRepository{db: db}
}

// Append relies on the deterministic event id: a second insert of the same
// transition is absorbed by ON CONFLICT.
func (r *probationEventRepository) Append(ctx context.Context, ev employment.ProbationEvent) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO probation_events (id, employment_id, event_type, event_date, previous_end_date, new_end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := q.Exec(ctx, query, ev.ID, ev.EmploymentID, ev.Type, ev.EventDate, ev.PreviousEndDate, ev.NewEndDate)
	if err != nil {
		return false, fmt.Errorf("failed to append probation event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *probationEventRepository) ListByEmployment(ctx context.Context, employmentID string) ([]employment.ProbationEvent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id::text, employment_id, event_type, event_date, previous_end_date, new_end_date, created_at
		FROM probation_events
		WHERE employment_id = $1
		ORDER BY event_date, created_at
	`

	rows, err := q.Query(ctx, query, employmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list probation events: %w", err)
	}
	defer rows.Close()

	var out []employment.ProbationEvent
	for rows.Next() {
		var ev employment.ProbationEvent
		if err := rows.Scan(&ev.ID, &ev.EmploymentID, &ev.Type, &ev.EventDate, &ev.PreviousEndDate, &ev.NewEndDate, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan probation event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate probation events: %w", err)
	}
	return out, nil
}
