// Package reminder holds the debt-reminder domain: the persisted
// configuration, the read-only debtor snapshot, delivery results, and the pure
// functions that decide when a reminder is due (NextTrigger), who gets it
// (Eligible), how urgent it is (EscalationPolicy) and what it says (Renderer).
//
// Nothing in this package performs I/O.
package reminder
