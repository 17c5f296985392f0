// Package web provides the HTTP control API: run status, pause and resume,
// run records and operation history.
package web

import (
	"time"

	"github.com/dukex/opflow/pkg/models"
)

// AppInfo describes a registered application.
type AppInfo struct {
	ID    string `json:"id"`
	Reset string `json:"reset"`
}

// AppStatus is an application with the status of its run record as seen now.
type AppStatus struct {
	ID        string           `json:"id"`
	Reset     string           `json:"reset"`
	Status    models.RunStatus `json:"status"`
	Date      string           `json:"date,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	RunID   string      `json:"run_id"`
	Running bool        `json:"running"`
	Stopped bool        `json:"stopped"`
	Apps    []AppStatus `json:"apps"`
}

// ControlResponse reports the run flag after a control request.
type ControlResponse struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

// UpdateRecordRequest sets the status of a run record, for example to force
// a rerun in the current period.
type UpdateRecordRequest struct {
	Status models.RunStatus `json:"status" validate:"required,oneof=wait success fail"`
}
