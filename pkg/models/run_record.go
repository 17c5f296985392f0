package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// RunStatus is the persisted status of an application for its current period.
type RunStatus string

const (
	RunStatusWait    RunStatus = "wait"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFail    RunStatus = "fail"
)

// DayResetHour is the hour at which a new game day starts.
const DayResetHour = 4

// DailyReset and WeeklyReset are the common reset windows.
const (
	DailyReset  = "0 4 * * *"
	WeeklyReset = "0 4 * * 1"
)

// ErrInvalidRunRecord is returned when run record validation fails.
var ErrInvalidRunRecord = errors.New("invalid run record")

var (
	recordValidator = validator.New(validator.WithRequiredStructEnabled())
	resetParser     = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// AppRunRecord remembers whether an application already ran in the current period
// so that a restarted process does not repeat finished work.
type AppRunRecord struct {
	AppID     string    `json:"app_id"     validate:"required,max=255"`
	Date      string    `json:"date"       validate:"required,len=8,numeric"`
	Status    RunStatus `json:"status"     validate:"required,oneof=wait running success fail"`
	Reset     string    `json:"reset"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

// NewAppRunRecord creates a WAIT record for the game day of now.
func NewAppRunRecord(appID, reset string, now time.Time) *AppRunRecord {
	return &AppRunRecord{
		AppID:     appID,
		Date:      GameDay(now),
		Status:    RunStatusWait,
		Reset:     reset,
		UpdatedAt: now,
	}
}

// GameDay returns the day string of t, with days starting at DayResetHour.
func GameDay(t time.Time) string {
	return t.Add(-DayResetHour * time.Hour).Format("20060102")
}

// StatusAt returns the status as seen at now: once the reset boundary following
// the last update has passed, the record is back to WAIT.
func (r *AppRunRecord) StatusAt(now time.Time) RunStatus {
	if r.expired(now) {
		return RunStatusWait
	}

	return r.Status
}

// CheckAndReset moves an expired record back to WAIT. It reports whether the
// record changed.
func (r *AppRunRecord) CheckAndReset(now time.Time) bool {
	if !r.expired(now) {
		return false
	}

	r.Update(RunStatusWait, now)

	return true
}

// Update sets the status and moves the record to the game day of now.
func (r *AppRunRecord) Update(status RunStatus, now time.Time) {
	r.Status = status
	r.Date = GameDay(now)
	r.UpdatedAt = now
}

// NextReset returns the first reset boundary after the last update.
func (r *AppRunRecord) NextReset() (time.Time, error) {
	schedule, err := resetParser.Parse(r.resetExpression())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reset expression %q: %w", r.Reset, err)
	}

	return schedule.Next(r.UpdatedAt), nil
}

// Validate performs validation on the record fields.
func (r *AppRunRecord) Validate() error {
	err := recordValidator.Struct(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRunRecord, err)
	}

	_, err = resetParser.Parse(r.resetExpression())
	if err != nil {
		return fmt.Errorf("%w: reset %q: %w", ErrInvalidRunRecord, r.Reset, err)
	}

	return nil
}

// ValidateReset checks that expr is a 5-field cron expression. An empty
// expression means DailyReset.
func ValidateReset(expr string) error {
	if expr == "" {
		return nil
	}

	_, err := resetParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid reset expression %q: %w", expr, err)
	}

	return nil
}

func (r *AppRunRecord) expired(now time.Time) bool {
	if r.Status == RunStatusWait {
		return false
	}

	next, err := r.NextReset()
	if err != nil {
		return false
	}

	return !next.After(now)
}

func (r *AppRunRecord) resetExpression() string {
	if r.Reset == "" {
		return DailyReset
	}

	return r.Reset
}

// OperationRecord is the persisted history entry of one finished operation.
type OperationRecord struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Name       string        `json:"name"`
	Success    bool          `json:"success"`
	Status     Status        `json:"status,omitempty"`
	Error      string        `json:"error,omitempty"`
	Rounds     int           `json:"rounds"`
	Retries    int           `json:"retries"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}
