package reminder

import (
	"math"
	"time"
)

// Eligible returns the debtors that qualify for a reminder, preserving input
// order. The input slice is not modified.
func Eligible(debtors []Debtor, e Eligibility, now time.Time) []Debtor {
	out := make([]Debtor, 0, len(debtors))
	for _, d := range debtors {
		if e.OnlyWithPositiveBalance && d.Balance <= 0 {
			continue
		}
		if e.MinimumBalance != nil && d.Balance < *e.MinimumBalance {
			continue
		}
		if e.OverdueOnly {
			age, ok := DaysSinceLastDebt(d, now)
			if !ok {
				continue
			}
			need := 0
			if e.OverdueDays != nil {
				need = *e.OverdueDays
			}
			if age < need {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// LastDebt returns the most recent debt-type transaction. On equal dates the
// earliest one in the slice wins.
func LastDebt(d Debtor) (Transaction, bool) {
	var (
		last  Transaction
		found bool
	)
	for _, tx := range d.Transactions {
		if tx.Type != TransactionDebt {
			continue
		}
		if !found || tx.Date.After(last.Date) {
			last, found = tx, true
		}
	}
	return last, found
}

// DaysSinceLastDebt is the whole number of days (floored) between the most
// recent debt transaction and now.
func DaysSinceLastDebt(d Debtor, now time.Time) (int, bool) {
	tx, ok := LastDebt(d)
	if !ok {
		return 0, false
	}
	return wholeDays(now.Sub(tx.Date)), true
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
