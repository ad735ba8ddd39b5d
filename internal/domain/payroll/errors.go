package payroll

import "errors"

var (
	ErrPayrollLineNotFound = errors.New("payroll line not found")
	ErrPayrollLineExists   = errors.New("payroll line already exists for allocation and period")
	ErrLineAlreadyReversed = errors.New("payroll line already reversed")
	ErrCannotReverse       = errors.New("only posted payroll lines can be reversed")
	ErrInvalidPeriod       = errors.New("invalid payroll period")
	ErrBatchNotFound       = errors.New("payroll batch not found")
	ErrBatchFinished       = errors.New("payroll batch already finished")
	ErrBatchExists         = errors.New("payroll batch id already in use")
	ErrNetIdentity         = errors.New("net salary does not equal gross plus additions less deductions")
)
