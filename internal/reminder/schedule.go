package reminder

import "time"

// NextTrigger returns the next moment the reminder is due, strictly after now,
// in now's location.
//
// Weekly and biweekly land on DayOfWeek (0 = Sunday). Biweekly skips 14 days
// instead of 7 when today's slot has already passed; any other parity is left
// to the rate governor's minimum interval. Monthly clamps DayOfMonth to the
// last day of months that are too short (31 -> Feb 28/29, Apr 30, ...).
func NextTrigger(cfg Configuration, now time.Time) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	loc := now.Location()
	y, m, d := now.Date()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, hour, minute, 0, 0, loc)
	}
	today := at(y, m, d)

	switch cfg.Frequency {
	case FrequencyDaily:
		if !today.After(now) {
			return at(y, m, d+1), nil
		}
		return today, nil

	case FrequencyWeekly, FrequencyBiweekly:
		if cfg.DayOfWeek < 0 || cfg.DayOfWeek > 6 {
			return time.Time{}, configErr("day_of_week %d: want 0..6", cfg.DayOfWeek)
		}
		days := (cfg.DayOfWeek - int(now.Weekday()) + 7) % 7
		if days == 0 && !today.After(now) {
			days = 7
			if cfg.Frequency == FrequencyBiweekly {
				days = 14
			}
		}
		return at(y, m, d+days), nil

	case FrequencyMonthly:
		if cfg.DayOfMonth < 1 || cfg.DayOfMonth > 31 {
			return time.Time{}, configErr("day_of_month %d: want 1..31", cfg.DayOfMonth)
		}
		cand := at(y, m, clampDay(y, m, cfg.DayOfMonth))
		if !cand.After(now) {
			first := time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
			ny, nm := first.Year(), first.Month()
			cand = at(ny, nm, clampDay(ny, nm, cfg.DayOfMonth))
		}
		return cand, nil

	default:
		return time.Time{}, configErr("unknown frequency %q", cfg.Frequency)
	}
}

// DaysInMonth reports the number of days in the given month.
func DaysInMonth(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(y int, m time.Month, day int) int {
	if n := DaysInMonth(y, m); day > n {
		return n
	}
	return day
}
