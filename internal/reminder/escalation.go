package reminder

import "time"

// EscalationLevel is the urgency tier of a reminder. It is decided once, when
// the reminder is scheduled, and never re-evaluated at send time.
type EscalationLevel int

const (
	LevelReminder EscalationLevel = 0
	LevelWarning  EscalationLevel = 1
	LevelCritical EscalationLevel = 2
)

func (l EscalationLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "reminder"
	}
}

// Priority is a 0..10 delivery hint derived from the level only.
func (l EscalationLevel) Priority() int {
	switch l {
	case LevelWarning:
		return 7
	case LevelCritical:
		return 9
	default:
		return 5
	}
}

// EscalationPolicy maps a day offset to a level. With the default thresholds
// the 7/14/21 staircase yields reminder/warning/critical.
type EscalationPolicy struct {
	WarningAfterDays  int
	CriticalAfterDays int
}

func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{WarningAfterDays: 7, CriticalAfterDays: 14}
}

// Level is non-decreasing in daysFromNow.
func (p EscalationPolicy) Level(daysFromNow int) EscalationLevel {
	if p.WarningAfterDays <= 0 && p.CriticalAfterDays <= 0 {
		p = DefaultEscalationPolicy()
	}
	switch {
	case daysFromNow > p.CriticalAfterDays:
		return LevelCritical
	case daysFromNow > p.WarningAfterDays:
		return LevelWarning
	default:
		return LevelReminder
	}
}

// ForDebtor picks the level for an immediate reminder from the age of the
// debtor's most recent debt. Debtors without debt transactions get LevelReminder.
func (p EscalationPolicy) ForDebtor(d Debtor, now time.Time) EscalationLevel {
	age, ok := DaysSinceLastDebt(d, now)
	if !ok {
		return LevelReminder
	}
	return p.Level(age)
}

// CascadeStep is one ahead-of-time reminder with its level already fixed.
type CascadeStep struct {
	At    time.Time
	Days  int
	Level EscalationLevel
}

// Cascade lays out the staircase starting at now.
func (p EscalationPolicy) Cascade(offsetsDays []int, now time.Time) []CascadeStep {
	if len(offsetsDays) == 0 {
		offsetsDays = DefaultCascadeOffsets
	}
	out := make([]CascadeStep, 0, len(offsetsDays))
	for _, days := range offsetsDays {
		out = append(out, CascadeStep{
			At:    now.AddDate(0, 0, days),
			Days:  days,
			Level: p.Level(days),
		})
	}
	return out
}
