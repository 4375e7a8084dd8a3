package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/pagination"
)

// PostgresStore persists analysis records in PostgreSQL. The schema lives
// in migrations/001_wallet_analyses.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	var key sql.NullString
	if rec.IdempotencyKey != "" {
		key = sql.NullString{String: rec.IdempotencyKey, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_analyses (
			id, request_id, idempotency_key, wallet_address, decision,
			risk_score, confidence, source, critical_override, result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID,
		rec.RequestID,
		key,
		NormalizeAddress(rec.WalletAddress),
		string(rec.Decision),
		rec.RiskScore,
		rec.Confidence,
		string(rec.Source),
		rec.CriticalOverride,
		resultJSON,
		rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to record wallet analysis: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, request_id, COALESCE(idempotency_key, ''), wallet_address, decision,
	       risk_score, confidence, source, critical_override, result, created_at
	FROM wallet_analyses`

func (s *PostgresStore) ListByWallet(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Record, error) {
	var (
		afterAt sql.NullTime
		afterID string
	)
	if after != nil {
		afterAt = sql.NullTime{Time: after.CreatedAt, Valid: true}
		afterID = after.ID
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE wallet_address = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, NormalizeAddress(wallet), afterAt, afterID, fetchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet analyses: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE idempotency_key = $1`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var resultJSON []byte
	if err := sc.Scan(
		&rec.ID, &rec.RequestID, &rec.IdempotencyKey, &rec.WalletAddress, &rec.Decision,
		&rec.RiskScore, &rec.Confidence, &rec.Source, &rec.CriticalOverride, &resultJSON, &rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan wallet analysis: %w", err)
	}
	rec.Result = &engine.AnalysisResult{}
	if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result %s: %w", rec.ID, err)
	}
	return &rec, nil
}
