package domain

import "time"

type AutomationStatus string

const (
	AutomationActive   AutomationStatus = "active"
	AutomationPaused   AutomationStatus = "paused"
	AutomationInactive AutomationStatus = "inactive"
	AutomationError    AutomationStatus = "error"
)

type ScheduleType string

const (
	ScheduleHourly  ScheduleType = "hourly"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCustom  ScheduleType = "custom"
)

// PostingSchedule defines when an automation produces content.
// TimeOfDay is wall-clock "HH:MM" interpreted in Timezone, so posts keep
// their local time across DST transitions. IntervalSeconds is the
// custom-schedule cadence as the dashboard writes it: whole seconds,
// not a Go duration.
type PostingSchedule struct {
	Type            ScheduleType `json:"type" yaml:"type"`
	IntervalSeconds int64        `json:"interval_seconds" yaml:"interval_seconds"` // custom schedules only
	DaysOfWeek      []int        `json:"days_of_week" yaml:"days_of_week"`
	TimeOfDay       string       `json:"time_of_day" yaml:"time_of_day"`
	Timezone        string       `json:"timezone" yaml:"timezone"`
}

// Interval returns the custom-schedule cadence as a duration.
func (s PostingSchedule) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

type ContentSettings struct {
	Topic          string `json:"topic"`
	Tone           string `json:"tone"`
	ContentType    string `json:"content_type"`
	TargetAudience string `json:"target_audience"`
	IncludeCTA     bool   `json:"include_cta"`
}

type AISettings struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Creativity  string  `json:"creativity"`
}

type HashtagSettings struct {
	AutoGenerate bool     `json:"auto_generate"`
	MaxCount     int      `json:"max_count"`
	Preferred    []string `json:"preferred"`
	Avoid        []string `json:"avoid"`
}

// Automation is a user-defined rule that generates and schedules content
// on a cadence. NextRun is always recomputable from PostingSchedule and
// LastRun; an automation in error status keeps its NextRun frozen until a
// user resets it.
type Automation struct {
	ID              int64
	UserID          int64
	Name            string
	Description     *string
	Platforms       []Platform
	ContentSettings ContentSettings
	PostingSchedule PostingSchedule
	AISettings      *AISettings
	HashtagSettings *HashtagSettings
	Status          AutomationStatus
	LastRun         *time.Time
	NextRun         *time.Time
	RunCount        int
	ErrorCount      int
	LastError       *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
