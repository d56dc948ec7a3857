package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

//go:embed migrations.sql
var schemaSQL string

// schemaVersion is stamped into PRAGMA user_version after the schema applies.
const schemaVersion = 1

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	dedupWrites atomic.Uint64
}

const dedupPruneEvery = 500

// sqliteDSN turns a file path into a modernc DSN whose pragmas apply to every
// pooled connection.
func sqliteDSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	// One writer; readers queue behind it instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate %s: %w", path, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	var have int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&have); err != nil {
		return err
	}
	if have > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", have, schemaVersion)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	if have < schemaVersion {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		return err
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetReminderConfig(ctx context.Context) (reminder.Configuration, bool, error) {
	var (
		cfg  reminder.Configuration
		body string
	)
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reminder_config WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, err
	}
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return cfg, false, fmt.Errorf("decode reminder config: %w", err)
	}
	return cfg, true, nil
}

func (s *sqliteStore) PutReminderConfig(ctx context.Context, cfg reminder.Configuration) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reminder_config(id, body, updated_at) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetRunState(ctx context.Context) (reminder.RunState, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_fired_at FROM run_state WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.RunState{}, nil
	}
	if err != nil {
		return reminder.RunState{}, err
	}
	if !last.Valid || last.String == "" {
		return reminder.RunState{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, last.String)
	if err != nil {
		return reminder.RunState{}, fmt.Errorf("decode last_fired_at: %w", err)
	}
	return reminder.RunState{LastFiredAt: &t}, nil
}

func (s *sqliteStore) PutRunState(ctx context.Context, st reminder.RunState) error {
	var last any
	if st.LastFiredAt != nil {
		last = st.LastFiredAt.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_state(id, last_fired_at) VALUES(1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_fired_at=excluded.last_fired_at`,
		last,
	)
	return err
}

func (s *sqliteStore) ResetRunState(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_state`)
	return err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, e reminder.HistoryEntry, cap int) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deliveries(id, debtor_id, debtor_name, amount, channel, status, reason, detail, level, at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.DebtorID, e.DebtorName, e.Amount, string(e.Channel), string(e.Status),
		nullStr(string(e.Reason)), nullStr(e.Detail), int(e.Level), e.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	if cap > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM deliveries WHERE seq <= (SELECT MAX(seq) FROM deliveries) - ?`, cap)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, limit int) ([]reminder.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, debtor_id, debtor_name, amount, channel, status, reason, detail, level, at
		 FROM deliveries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.HistoryEntry
	for rows.Next() {
		e, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanDelivery(rows *sql.Rows) (reminder.HistoryEntry, error) {
	var (
		e              reminder.HistoryEntry
		channel, stat  string
		reason, detail sql.NullString
		level          int
		at             string
	)
	if err := rows.Scan(&e.ID, &e.DebtorID, &e.DebtorName, &e.Amount, &channel, &stat, &reason, &detail, &level, &at); err != nil {
		return e, err
	}
	e.Channel = reminder.Channel(channel)
	e.Status = reminder.Status(stat)
	e.Reason = reminder.Reason(reason.String)
	e.Detail = detail.String
	e.Level = reminder.EscalationLevel(level)
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return e, fmt.Errorf("decode delivery %s time: %w", e.ID, err)
	}
	e.At = t
	return e, nil
}

func (s *sqliteStore) ClearDeliveries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deliveries`)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err != nil {
		return err
	}
	if s.dedupWrites.Add(1)%dedupPruneEvery == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli()); err != nil {
			s.log.Debug("dedup prune failed", logx.Err(err))
		}
	}
	return nil
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
