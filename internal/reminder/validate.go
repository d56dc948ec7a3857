package reminder

import (
	"regexp"
	"strconv"
)

var reTimeOfDay = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseTimeOfDay parses a 24-hour "HH:MM" wall-clock time.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := reTimeOfDay.FindStringSubmatch(s)
	if len(m) != 3 {
		return 0, 0, configErr("time_of_day %q: want HH:MM", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, configErr("time_of_day %q: hour out of range", s)
	}
	if minute > 59 {
		return 0, 0, configErr("time_of_day %q: minute out of range", s)
	}
	return hour, minute, nil
}

// Validate checks that frequency, anchor fields and time are jointly consistent.
// Every error wraps ErrConfigInvalid.
func (c Configuration) Validate() error {
	if _, _, err := ParseTimeOfDay(c.TimeOfDay); err != nil {
		return err
	}
	switch c.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly, FrequencyBiweekly:
		if c.DayOfWeek < 0 || c.DayOfWeek > 6 {
			return configErr("day_of_week %d: want 0..6 for %s", c.DayOfWeek, c.Frequency)
		}
	case FrequencyMonthly:
		if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
			return configErr("day_of_month %d: want 1..31 for monthly", c.DayOfMonth)
		}
	default:
		return configErr("unknown frequency %q", c.Frequency)
	}

	if len(c.Channels) == 0 {
		return configErr("at least one channel is required")
	}
	for _, ch := range c.Channels {
		if !ch.Valid() {
			return configErr("unknown channel %q", ch)
		}
	}

	e := c.Eligibility
	if e.MinimumBalance != nil && *e.MinimumBalance < 0 {
		return configErr("eligibility.minimum_balance must be >= 0")
	}
	if e.OverdueDays != nil && *e.OverdueDays < 0 {
		return configErr("eligibility.overdue_days must be >= 0")
	}

	prev := 0
	for _, off := range c.Cascade.OffsetsDays {
		if off <= prev {
			return configErr("cascade.offsets_days must be positive and ascending")
		}
		prev = off
	}
	return nil
}
