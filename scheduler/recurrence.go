package scheduler

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
)

// FixedZone returns the zone every occurrence is computed in. Host time zone
// and DST never apply.
func FixedZone(offset time.Duration) *time.Location {
	seconds := int(offset / time.Second)
	sign := "+"
	if seconds < 0 {
		sign = "-"
	}
	hours := offset.Hours()
	if hours < 0 {
		hours = -hours
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%g", sign, hours), seconds)
}

// NextOccurrence returns the first firing of cfg strictly after ref.
func NextOccurrence(cfg models.ScheduleConfig, ref time.Time, loc *time.Location) (time.Time, error) {
	if err := cfg.Validate(); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	hour, minute, err := cfg.ClockTime()
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)

	switch cfg.Frequency {
	case models.FrequencyDaily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(ref) {
			candidate = candidate.Add(24 * time.Hour)
		}
		return candidate, nil

	case models.FrequencyWeekly, models.FrequencyBiWeekly:
		// weeks start on Sunday
		weekStart := local.Day() - int(local.Weekday())
		candidate := time.Date(local.Year(), local.Month(), weekStart+cfg.Weekday, hour, minute, 0, 0, loc)
		if !candidate.After(ref) {
			step := 7
			if cfg.Frequency == models.FrequencyBiWeekly {
				step = 14
			}
			candidate = candidate.AddDate(0, 0, step)
		}
		return candidate, nil

	case models.FrequencyMonthly:
		for i := 0; ; i++ {
			first := time.Date(local.Year(), local.Month()+time.Month(i), 1, hour, minute, 0, 0, loc)
			day := clampDay(first.Year(), first.Month(), cfg.DayOfMonth)
			candidate := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, loc)
			if candidate.After(ref) {
				return candidate, nil
			}
		}
	}
	return time.Time{}, &utils.ConfigurationError{Field: "frequency", Reason: fmt.Sprintf("unsupported value %q", cfg.Frequency)}
}

// clampDay walks day back until it exists in the month. Day 1 always does.
func clampDay(year int, month time.Month, day int) int {
	for day > 1 && time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Month() != month {
		day--
	}
	return day
}
