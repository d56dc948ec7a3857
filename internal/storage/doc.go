// Package storage persists the engine's own state: the reminder
// configuration, the last firing, the capped delivery ledger and the
// notifier's dedup windows. Debtor records live elsewhere and are read
// through the debtors package.
package storage
