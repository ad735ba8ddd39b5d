package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const payrollLineColumns = `
	id::text, batch_id, employment_id, allocation_id::text, source_kind, source_id,
	organization_id, source_organization_id, pay_period, salary_type, fte,
	gross_salary, gross_by_fte, thirteenth_month, bonus,
	tax, social_security_employee, social_security_employer,
	health_welfare_employee, health_welfare_employer,
	pvd_employee, pvd_employer, saving_fund_employee, saving_fund_employer,
	total_deductions, net_salary, needs_inter_org_advance, status, reversal_of::text, created_at`

type payrollRepository struct {
	db *database.DB
}

func NewPayrollRepository(db *database.DB) payroll.Repository {
	return &payrollRepository{db: db}
}

func scanPayrollLine(row scanner) (payroll.PayrollLine, error) {
	var (
		l           payroll.PayrollLine
		kind, srcID string
		salaryType  string
		status      string
	)
	if err := row.Scan(
		&l.ID, &l.BatchID, &l.EmploymentID, &l.AllocationID, &kind, &srcID,
		&l.OrganizationID, &l.SourceOrganizationID, &l.PayPeriod, &salaryType, &l.FTE,
		&l.GrossSalary, &l.GrossByFTE, &l.ThirteenthMonth, &l.Bonus,
		&l.Tax, &l.SocialSecurityEmployee, &l.SocialSecurityEmployer,
		&l.HealthWelfareEmployee, &l.HealthWelfareEmployer,
		&l.PVDEmployee, &l.PVDEmployer, &l.SavingFundEmployee, &l.SavingFundEmployer,
		&l.TotalDeductions, &l.NetSalary, &l.NeedsInterOrgAdvance, &status, &l.ReversalOf, &l.CreatedAt,
	); err != nil {
		return payroll.PayrollLine{}, err
	}
	src, err := fundingsource.New(fundingsource.Kind(kind), srcID)
	if err != nil {
		return payroll.PayrollLine{}, fmt.Errorf("payroll line %s: %w", l.ID, err)
	}
	l.Source = src
	l.SalaryType = allocation.SalaryType(salaryType)
	l.Status = payroll.LineStatus(status)
	return l, nil
}

func (r *payrollRepository) ExistsForAllocationPeriod(ctx context.Context, allocationID string, period time.Time) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM payroll_lines
			WHERE allocation_id = $1 AND pay_period = $2 AND status = 'posted'
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, allocationID, payroll.PeriodStart(period)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check payroll line: %w", err)
	}
	return exists, nil
}

func (r *payrollRepository) CreateLines(ctx context.Context, lines []payroll.PayrollLine) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_lines (
			id, batch_id, employment_id, allocation_id, source_kind, source_id,
			organization_id, source_organization_id, pay_period, salary_type, fte,
			gross_salary, gross_by_fte, thirteenth_month, bonus,
			tax, social_security_employee, social_security_employer,
			health_welfare_employee, health_welfare_employer,
			pvd_employee, pvd_employer, saving_fund_employee, saving_fund_employer,
			total_deductions, net_salary, needs_inter_org_advance, status, reversal_of
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)
	`

	for _, l := range lines {
		_, err := q.Exec(ctx, query,
			l.ID, l.BatchID, l.EmploymentID, l.AllocationID, string(l.Source.Kind()), l.Source.ID(),
			l.OrganizationID, l.SourceOrganizationID, payroll.PeriodStart(l.PayPeriod), string(l.SalaryType), l.FTE,
			l.GrossSalary, l.GrossByFTE, l.ThirteenthMonth, l.Bonus,
			l.Tax, l.SocialSecurityEmployee, l.SocialSecurityEmployer,
			l.HealthWelfareEmployee, l.HealthWelfareEmployer,
			l.PVDEmployee, l.PVDEmployer, l.SavingFundEmployee, l.SavingFundEmployer,
			l.TotalDeductions, l.NetSalary, l.NeedsInterOrgAdvance, string(l.Status), l.ReversalOf,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: allocation %s", payroll.ErrPayrollLineExists, l.AllocationID)
			}
			return fmt.Errorf("failed to insert payroll line: %w", err)
		}
	}
	return nil
}

func (r *payrollRepository) GetByID(ctx context.Context, id string) (payroll.PayrollLine, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + payrollLineColumns + ` FROM payroll_lines WHERE id = $1`

	l, err := scanPayrollLine(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.PayrollLine{}, payroll.ErrPayrollLineNotFound
		}
		return payroll.PayrollLine{}, fmt.Errorf("failed to get payroll line: %w", err)
	}
	return l, nil
}

func (r *payrollRepository) ListByBatch(ctx context.Context, batchID string) ([]payroll.PayrollLine, error) {
	query := `
		SELECT ` + payrollLineColumns + `
		FROM payroll_lines
		WHERE batch_id = $1
		ORDER BY employment_id, fte DESC, id
	`
	return r.list(ctx, query, batchID)
}

func (r *payrollRepository) ListByEmploymentPeriod(ctx context.Context, employmentID string, period time.Time) ([]payroll.PayrollLine, error) {
	query := `
		SELECT ` + payrollLineColumns + `
		FROM payroll_lines
		WHERE employment_id = $1 AND pay_period = $2
		ORDER BY created_at, fte DESC, id
	`
	return r.list(ctx, query, employmentID, payroll.PeriodStart(period))
}

func (r *payrollRepository) list(ctx context.Context, query string, args ...any) ([]payroll.PayrollLine, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll lines: %w", err)
	}
	defer rows.Close()

	var out []payroll.PayrollLine
	for rows.Next() {
		l, err := scanPayrollLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payroll lines: %w", err)
	}
	return out, nil
}

func (r *payrollRepository) SumYearToDate(ctx context.Context, employmentID string, period time.Time) (payroll.YearToDate, error) {
	q := GetQuerier(ctx, r.db)

	start := payroll.PeriodStart(period)
	yearStart := time.Date(start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	// Reversal rows carry negated amounts, so summing every status nets them out.
	query := `
		SELECT COALESCE(SUM(gross_by_fte), 0), COALESCE(SUM(tax), 0)
		FROM payroll_lines
		WHERE employment_id = $1 AND pay_period >= $2 AND pay_period < $3
	`

	var ytd payroll.YearToDate
	if err := q.QueryRow(ctx, query, employmentID, yearStart, start).Scan(&ytd.Gross, &ytd.Tax); err != nil {
		return payroll.YearToDate{}, fmt.Errorf("failed to sum year to date: %w", err)
	}
	return ytd, nil
}

func (r *payrollRepository) MarkReversed(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	query := `UPDATE payroll_lines SET status = 'reversed' WHERE id = $1 AND status = 'posted'`

	tag, err := q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reverse payroll line: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return payroll.ErrCannotReverse
}
