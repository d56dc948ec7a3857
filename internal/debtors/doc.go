// Package debtors reads the debtor snapshot the reminder engine works on.
//
// Sources are read-only and preserve the order in which the backing ledger
// returns debtors; the engine depends on that order being stable between runs.
package debtors
