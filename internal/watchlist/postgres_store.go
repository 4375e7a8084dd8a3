package watchlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/decision"
)

// PostgresStore persists the watchlist in the monitored_wallets table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed watchlist.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, w *Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitored_wallets (address, label, added_by, created_at)
		VALUES ($1, $2, $3, $4)
	`, audit.NormalizeAddress(w.Address), w.Label, w.AddedBy, w.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyMonitored
		}
		return fmt.Errorf("failed to add monitored wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, address string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitored_wallets WHERE address = $1`, audit.NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("failed to remove monitored wallet: %w", err)
	}
	return requireRow(res)
}

const selectWallet = `
	SELECT address, label, added_by, last_decision, last_score, last_analyzed, created_at
	FROM monitored_wallets`

func (s *PostgresStore) Get(ctx context.Context, address string) (*Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx, selectWallet+` WHERE address = $1`, audit.NormalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotMonitored
	}
	return w, err
}

func (s *PostgresStore) List(ctx context.Context) ([]*Wallet, error) {
	rows, err := s.db.QueryContext(ctx, selectWallet+` ORDER BY created_at ASC, address ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored wallets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monitored wallets: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordAnalysis(ctx context.Context, address string, d decision.Decision, score int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitored_wallets
		SET last_decision = $2, last_score = $3, last_analyzed = $4
		WHERE address = $1
	`, audit.NormalizeAddress(address), string(d), score, at)
	if err != nil {
		return fmt.Errorf("failed to stamp monitored wallet: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotMonitored
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(sc scanner) (*Wallet, error) {
	var (
		w            Wallet
		lastDecision sql.NullString
		lastScore    sql.NullInt64
		lastAnalyzed sql.NullTime
	)
	if err := sc.Scan(&w.Address, &w.Label, &w.AddedBy, &lastDecision, &lastScore, &lastAnalyzed, &w.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan monitored wallet: %w", err)
	}
	if lastDecision.Valid {
		w.LastDecision = decision.Decision(lastDecision.String)
	}
	if lastScore.Valid {
		v := int(lastScore.Int64)
		w.LastScore = &v
	}
	if lastAnalyzed.Valid {
		t := lastAnalyzed.Time
		w.LastAnalyzed = &t
	}
	return &w, nil
}
