package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSchedulesOverdueSweep marks lapsed installments overdue and applies late fees.
	TaskSchedulesOverdueSweep = "schedules:overdue_sweep"
	// TaskCommissionsDueScan reports commissions approaching or past their due date.
	TaskCommissionsDueScan = "commissions:due_scan"
	// TaskLedgerIntegrityCheck recomputes account balances from posted lines.
	TaskLedgerIntegrityCheck = "ledger:integrity_check"
)

// OverdueSweepPayload configures a single overdue sweep run.
type OverdueSweepPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewOverdueSweepTask constructs an overdue sweep task.
func NewOverdueSweepTask(payload OverdueSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSchedulesOverdueSweep, data), nil
}

// CommissionScanPayload configures a commission due scan run.
type CommissionScanPayload struct {
	HorizonDays int `json:"horizon_days"`
}

// NewCommissionScanTask constructs a commission due scan task.
func NewCommissionScanTask(payload CommissionScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionsDueScan, data), nil
}

// LedgerIntegrityPayload configures a ledger integrity run.
type LedgerIntegrityPayload struct {
	// Limit caps the number of accounts examined; zero means all.
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs a ledger integrity task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityCheck, data), nil
}
