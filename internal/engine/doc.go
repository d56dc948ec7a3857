// Package engine drives reminder firings.
//
// A cron "@every" poll moves the Driver through Idle -> Polling -> Firing ->
// Idle. Only one poll or firing is in flight at a time; ticks that arrive
// while busy are dropped. Each firing re-reads the reminder configuration
// from storage, so edits made between ticks are always honoured.
package engine
