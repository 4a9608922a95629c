package cron

import (
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/id"
)

// Entry is one recurring or one-shot enqueue.
type Entry struct {
	docket.Entity

	ID        id.CronID  `json:"id"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule,omitempty"`
	JobName   string     `json:"job_name"`
	Data      []byte     `json:"data,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastJobID int64      `json:"last_job_id,omitempty"`
	Enabled   bool       `json:"enabled"`

	// once is set for entries added with AddOnce; they disable after
	// their single run.
	once bool
}
