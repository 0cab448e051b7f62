package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/domain"
)

func TestDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	nextRun := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name       string
		automation domain.Automation
		want       bool
	}{
		{
			name:       "active and past next_run",
			automation: domain.Automation{Status: domain.AutomationActive, NextRun: &nextRun},
			want:       true,
		},
		{
			name:       "active but next_run in future",
			automation: domain.Automation{Status: domain.AutomationActive, NextRun: &future},
			want:       false,
		},
		{
			name:       "never run fires immediately",
			automation: domain.Automation{Status: domain.AutomationActive},
			want:       true,
		},
		{
			name:       "paused is never due",
			automation: domain.Automation{Status: domain.AutomationPaused, NextRun: &nextRun},
			want:       false,
		},
		{
			name:       "error is frozen until reset",
			automation: domain.Automation{Status: domain.AutomationError, NextRun: &nextRun},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Due(&tt.automation, now))
		})
	}
}

func TestNext_Hourly(t *testing.T) {
	sched := domain.PostingSchedule{Type: domain.ScheduleHourly}
	lastRun := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// evaluated at 09:59: next run is 10:00
	next, err := Next(sched, lastRun, time.Date(2025, 6, 1, 9, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), next)

	// evaluated at 10:01 after a due run: advances one step past now,
	// keeping the :00 phase
	next, err = Next(sched, lastRun, time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestNext_Custom(t *testing.T) {
	sched := domain.PostingSchedule{Type: domain.ScheduleCustom, IntervalSeconds: 90 * 60}
	lastRun := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	next, err := Next(sched, lastRun, lastRun.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, lastRun.Add(90*time.Minute), next)

	// repeated evaluation before next_run produces the same answer
	again, err := Next(sched, lastRun, lastRun.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, next, again)
}

func TestNext_CustomRequiresInterval(t *testing.T) {
	sched := domain.PostingSchedule{Type: domain.ScheduleCustom}
	_, err := Next(sched, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), time.Now())
	assert.Error(t, err)
}

func TestNext_CustomDowntimeNoBacklog(t *testing.T) {
	sched := domain.PostingSchedule{Type: domain.ScheduleCustom, IntervalSeconds: 10 * 60}
	lastRun := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// process was down for 7 intervals; exactly one step past now
	now := lastRun.Add(72 * time.Minute)
	next, err := Next(sched, lastRun, now)
	require.NoError(t, err)
	assert.Equal(t, lastRun.Add(80*time.Minute), next)
	assert.True(t, next.After(now))
	assert.LessOrEqual(t, next.Sub(now), 10*time.Minute)
}

func TestNext_Daily(t *testing.T) {
	sched := domain.PostingSchedule{
		Type:      domain.ScheduleDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
	}
	lastRun := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	next, err := Next(sched, lastRun, lastRun.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNext_DailyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sched := domain.PostingSchedule{
		Type:      domain.ScheduleDaily,
		TimeOfDay: "09:00",
		Timezone:  "America/New_York",
	}

	// March 8 2025: EST, UTC-5. March 9: spring forward to EDT, UTC-4.
	lastRun := time.Date(2025, 3, 8, 9, 0, 0, 0, loc)
	next, err := Next(sched, lastRun, lastRun.Add(time.Minute))
	require.NoError(t, err)

	// still 9:00 local even though only 23h of real time elapsed
	assert.Equal(t, 9, next.In(loc).Hour())
	assert.True(t, next.Equal(time.Date(2025, 3, 9, 9, 0, 0, 0, loc)))
	assert.Equal(t, 23*time.Hour, next.Sub(lastRun))
}

func TestNext_Weekly(t *testing.T) {
	sched := domain.PostingSchedule{
		Type:       domain.ScheduleWeekly,
		DaysOfWeek: []int{1, 4}, // Monday, Thursday
		TimeOfDay:  "10:30",
		Timezone:   "UTC",
	}

	// Monday June 2 2025
	lastRun := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	next, err := Next(sched, lastRun, lastRun.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC), next) // Thursday

	next, err = Next(sched, next, next.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 9, 10, 30, 0, 0, time.UTC), next) // next Monday
}

func TestNext_Monthly(t *testing.T) {
	sched := domain.PostingSchedule{
		Type:      domain.ScheduleMonthly,
		TimeOfDay: "08:00",
		Timezone:  "UTC",
	}
	lastRun := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

	next, err := Next(sched, lastRun, lastRun.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC), next)
}

func TestNext_NeverRunFiresImmediately(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 34, 0, 0, time.UTC)
	next, err := Next(domain.PostingSchedule{Type: domain.ScheduleDaily}, time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, now, next)
}

func TestNext_UnknownType(t *testing.T) {
	_, err := Next(domain.PostingSchedule{Type: "fortnightly"}, time.Now(), time.Now())
	assert.Error(t, err)
}

func TestNext_BadTimezone(t *testing.T) {
	sched := domain.PostingSchedule{
		Type:     domain.ScheduleDaily,
		Timezone: "Mars/Olympus_Mons",
	}
	_, err := Next(sched, time.Now(), time.Now())
	assert.Error(t, err)
}
