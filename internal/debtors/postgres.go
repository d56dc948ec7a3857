package debtors

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

// Expected layout of the shop database. Only SELECTs are issued.
//
//	debtors(id, name, phone, current_balance, chat_id)
//	debtor_transactions(id, debtor_id, type, amount, date)
const (
	debtorsQuery = `SELECT id::text, name, COALESCE(phone, ''), current_balance::float8, COALESCE(chat_id::text, '')
		FROM debtors ORDER BY id`
	transactionsQuery = `SELECT debtor_id::text, type, amount::float8, date
		FROM debtor_transactions ORDER BY debtor_id, date, id`
)

// PostgresSource reads debtors straight from the shop's Postgres database.
type PostgresSource struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

// OpenPostgres connects and pings dsn.
func OpenPostgres(ctx context.Context, dsn string, log logx.Logger) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("debtor database connected")
	return &PostgresSource{pool: pool, log: log}, nil
}

func (s *PostgresSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSource) Snapshot(ctx context.Context) ([]reminder.Debtor, error) {
	rows, err := s.pool.Query(ctx, debtorsQuery)
	if err != nil {
		return nil, fmt.Errorf("query debtors: %w", err)
	}
	var debtors []reminder.Debtor
	for rows.Next() {
		var d reminder.Debtor
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Balance, &d.ChatID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan debtor: %w", err)
		}
		debtors = append(debtors, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query debtors: %w", err)
	}

	rows, err = s.pool.Query(ctx, transactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	var txs []txRow
	for rows.Next() {
		var r txRow
		var typ string
		if err := rows.Scan(&r.debtorID, &typ, &r.tx.Amount, &r.tx.Date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.tx.Type = reminder.TransactionType(typ)
		txs = append(txs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	orphans := attachTransactions(debtors, txs)
	if orphans > 0 {
		s.log.Debug("transactions without debtor ignored", logx.Int("count", orphans))
	}
	return debtors, nil
}

type txRow struct {
	debtorID string
	tx       reminder.Transaction
}

// attachTransactions appends each row to its debtor, keeping row order.
// It returns the number of rows whose debtor is not in the snapshot.
func attachTransactions(debtors []reminder.Debtor, rows []txRow) int {
	idx := make(map[string]int, len(debtors))
	for i, d := range debtors {
		idx[d.ID] = i
	}
	orphans := 0
	for _, r := range rows {
		i, ok := idx[r.debtorID]
		if !ok {
			orphans++
			continue
		}
		debtors[i].Transactions = append(debtors[i].Transactions, r.tx)
	}
	return orphans
}
