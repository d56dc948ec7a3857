package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

// fileStore keeps everything next to cfg.Path, named by its stem:
//
//	<stem>.reminder.json     reminder configuration
//	<stem>.runstate.json     run state
//	<stem>.deliveries.jsonl  delivery ledger, compacted past cap+10%
//	<stem>.dedup.jsonl       notifier dedup windows, compacted every 1000 writes
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	configPath string
	statePath  string

	deliveries   *journal
	history      []reminder.HistoryEntry
	dedupJournal *journal
	dedup        map[string]time.Time
	dedupSinceGC int
}

const dedupCompactEvery = 1000

type dedupRecord struct {
	Key   string    `json:"key"`
	Until time.Time `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	stem := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	s := &fileStore{
		log:        log,
		configPath: stem + ".reminder.json",
		statePath:  stem + ".runstate.json",
		dedup:      map[string]time.Time{},
	}
	var err error
	if s.deliveries, err = openJournal(stem+".deliveries.jsonl", func(e reminder.HistoryEntry) {
		s.history = append(s.history, e)
	}); err != nil {
		return nil, err
	}
	if s.dedupJournal, err = openJournal(stem+".dedup.jsonl", func(r dedupRecord) {
		if r.Key != "" {
			s.dedup[r.Key] = r.Until
		}
	}); err != nil {
		_ = s.deliveries.close()
		return nil, err
	}
	s.pruneDedup(time.Now())
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.deliveries.close(), s.dedupJournal.close())
}

func (s *fileStore) GetReminderConfig(ctx context.Context) (reminder.Configuration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfg reminder.Configuration
	ok, err := readDoc(s.configPath, &cfg)
	return cfg, ok, err
}

func (s *fileStore) PutReminderConfig(ctx context.Context, cfg reminder.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries.closed() {
		return ErrClosed
	}
	return writeDoc(s.configPath, cfg)
}

func (s *fileStore) GetRunState(ctx context.Context) (reminder.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st reminder.RunState
	_, err := readDoc(s.statePath, &st)
	return st, err
}

func (s *fileStore) PutRunState(ctx context.Context, st reminder.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries.closed() {
		return ErrClosed
	}
	return writeDoc(s.statePath, st)
}

func (s *fileStore) ResetRunState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.statePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) AppendDelivery(ctx context.Context, e reminder.HistoryEntry, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deliveries.append(e); err != nil {
		return err
	}
	s.history = trimToCap(append(s.history, e), cap)
	if cap > 0 && s.deliveries.lines > cap+cap/10 {
		kept := s.history
		err := s.deliveries.rewrite(len(kept), func(enc *json.Encoder) error {
			for _, e := range kept {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.log.Debug("deliveries compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentDeliveries(ctx context.Context, limit int) ([]reminder.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.history, limit), nil
}

func (s *fileStore) ClearDeliveries(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deliveries.truncate(); err != nil {
		return err
	}
	s.history = nil
	return nil
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	until = until.UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dedupJournal.append(dedupRecord{Key: key, Until: until}); err != nil {
		return err
	}
	s.dedup[key] = until
	if s.dedupSinceGC++; s.dedupSinceGC >= dedupCompactEvery {
		s.dedupSinceGC = 0
		if err := s.compactDedupLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournal.closed() {
		return time.Time{}, false, ErrClosed
	}
	until, ok := s.dedup[key]
	return until, ok, nil
}

func (s *fileStore) pruneDedup(now time.Time) {
	for k, until := range s.dedup {
		if until.Before(now) {
			delete(s.dedup, k)
		}
	}
}

func (s *fileStore) compactDedupLocked() error {
	s.pruneDedup(time.Now())
	return s.dedupJournal.rewrite(len(s.dedup), func(enc *json.Encoder) error {
		for k, until := range s.dedup {
			if err := enc.Encode(dedupRecord{Key: k, Until: until}); err != nil {
				return err
			}
		}
		return nil
	})
}
