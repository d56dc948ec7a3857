package app

import (
	"context"
	"fmt"

	"kasbon/internal/reminder"
	"kasbon/internal/storage"
)

// seedReminder writes seed into the store. Without overwrite an existing
// stored configuration wins, so edits made through the console survive
// restarts.
func seedReminder(ctx context.Context, store storage.Store, seed *reminder.Configuration, overwrite bool) (bool, error) {
	if store == nil || seed == nil {
		return false, nil
	}
	if !overwrite {
		if _, ok, err := store.GetReminderConfig(ctx); err != nil {
			return false, fmt.Errorf("read reminder config: %w", err)
		} else if ok {
			return false, nil
		}
	}
	if err := seed.Validate(); err != nil {
		return false, err
	}
	if err := store.PutReminderConfig(ctx, *seed); err != nil {
		return false, fmt.Errorf("write reminder config: %w", err)
	}
	return true, nil
}
