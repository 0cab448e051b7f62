// Package schedule decides due-ness of automations and computes the next
// run of a posting schedule. All wall-clock schedules are evaluated in the
// schedule's own timezone so a 9:00 local post stays 9:00 local across DST
// transitions.
package schedule

import (
	"fmt"
	"time"

	"autoposter/internal/domain"
)

// Due reports whether an automation should run at now. Only active
// automations are ever due; an automation in error status keeps its
// next_run frozen until a user resets it.
func Due(a *domain.Automation, now time.Time) bool {
	if a.Status != domain.AutomationActive {
		return false
	}
	if a.NextRun == nil {
		return true
	}
	return !now.Before(*a.NextRun)
}

// Next computes the run following lastRun for the given schedule. If the
// process was down and several intervals elapsed, the result is advanced
// exactly one cadence step past now, so a restart never produces a
// backlog flood. A zero lastRun means the automation has never run and
// fires immediately.
func Next(s domain.PostingSchedule, lastRun, now time.Time) (time.Time, error) {
	if lastRun.IsZero() {
		return now, nil
	}

	loc, err := location(s.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	switch s.Type {
	case domain.ScheduleHourly:
		return stepPast(lastRun, now, time.Hour), nil

	case domain.ScheduleCustom:
		if s.IntervalSeconds <= 0 {
			return time.Time{}, fmt.Errorf("custom schedule requires a positive interval")
		}
		return stepPast(lastRun, now, s.Interval()), nil

	case domain.ScheduleDaily:
		hh, mm, err := parseTimeOfDay(s.TimeOfDay, lastRun.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		next := atTimeOfDay(lastRun.In(loc).AddDate(0, 0, 1), hh, mm, loc)
		for !next.After(now) {
			next = atTimeOfDay(next.AddDate(0, 0, 1), hh, mm, loc)
		}
		return next, nil

	case domain.ScheduleWeekly:
		hh, mm, err := parseTimeOfDay(s.TimeOfDay, lastRun.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		days := s.DaysOfWeek
		if len(days) == 0 {
			days = []int{int(lastRun.In(loc).Weekday())}
		}
		next := nextWeekday(lastRun.In(loc), days, hh, mm, loc)
		for !next.After(now) {
			next = nextWeekday(next, days, hh, mm, loc)
		}
		return next, nil

	case domain.ScheduleMonthly:
		hh, mm, err := parseTimeOfDay(s.TimeOfDay, lastRun.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		next := atTimeOfDay(lastRun.In(loc).AddDate(0, 1, 0), hh, mm, loc)
		for !next.After(now) {
			next = atTimeOfDay(next.AddDate(0, 1, 0), hh, mm, loc)
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

// stepPast advances lastRun by whole steps until the result is after now.
// The phase of lastRun is preserved: last run 09:00 stepped hourly at
// 10:01 yields 11:00, not 11:01.
func stepPast(lastRun, now time.Time, step time.Duration) time.Time {
	next := lastRun.Add(step)
	if next.After(now) {
		return next
	}
	elapsed := now.Sub(lastRun)
	n := elapsed/step + 1
	return lastRun.Add(time.Duration(n) * step)
}

// atTimeOfDay pins t to hh:mm wall clock in loc. time.Date normalizes in
// the location, which is what keeps the schedule stable across DST.
func atTimeOfDay(t time.Time, hh, mm int, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

// nextWeekday finds the first day strictly after t whose weekday is in
// days, at hh:mm wall clock.
func nextWeekday(t time.Time, days []int, hh, mm int, loc *time.Location) time.Time {
	for i := 1; i <= 7; i++ {
		candidate := atTimeOfDay(t.In(loc).AddDate(0, 0, i), hh, mm, loc)
		for _, d := range days {
			if int(candidate.Weekday()) == d {
				return candidate
			}
		}
	}
	// days contained no valid weekday; fall back to one week out
	return atTimeOfDay(t.In(loc).AddDate(0, 0, 7), hh, mm, loc)
}

// parseTimeOfDay parses "HH:MM", falling back to the reference time's own
// wall clock when the schedule leaves it unset.
func parseTimeOfDay(s string, ref time.Time) (int, int, error) {
	if s == "" {
		return ref.Hour(), ref.Minute(), nil
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, fmt.Errorf("parse time_of_day %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("time_of_day %q out of range", s)
	}
	return hh, mm, nil
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
