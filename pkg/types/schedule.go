package types

import "time"

// ScheduleInfo describes a cron-scheduled program.
type ScheduleInfo struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	Program string    `json:"program"`
	NextRun time.Time `json:"nextRun"`
	Running bool      `json:"running"`
}
