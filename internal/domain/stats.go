package domain

import "time"

// SweepStats holds statistics about one engine sweep over due automations.
type SweepStats struct {
	Due       int
	Generated int
	Enqueued  int
	Skipped   int
	Errors    int
	Duration  time.Duration
}

// QueueStats is the snapshot served by the health endpoint.
type QueueStats struct {
	DueAutomations int64            `json:"due_automations"`
	QueueDepth     map[string]int64 `json:"queue_depth"`
	BusyWorkers    int64            `json:"busy_workers"`
	PoolSize       int              `json:"pool_size"`
}
