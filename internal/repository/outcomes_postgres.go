package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
)

// PostgresOutcomesRepository enforces row-level tenant isolation in SQL:
// every statement carries the bound scope's tenant as a parameterized
// predicate. There is no code path here that queries without it.
type PostgresOutcomesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOutcomesRepository(ctx context.Context, databaseURL string) (*PostgresOutcomesRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresOutcomesRepository{pool: pool}, nil
}

func (r *PostgresOutcomesRepository) Close() {
	r.pool.Close()
}

func (r *PostgresOutcomesRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresOutcomesRepository) RecordQueued(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO outcome_records (
			tenant_id, ticket_id, correlation_id, status, started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (correlation_id) DO NOTHING
	`, scope.TenantID(), record.TicketID, record.CorrelationID, string(domain.OutcomeQueued), record.StartedAt)
	if err != nil {
		return fmt.Errorf("insert queued outcome: %w", err)
	}
	return nil
}

func (r *PostgresOutcomesRepository) RecordStarted(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO outcome_records (
			tenant_id, ticket_id, correlation_id, status, started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (correlation_id) DO UPDATE
		SET status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			updated_at = NOW()
		WHERE outcome_records.tenant_id = EXCLUDED.tenant_id
		  AND outcome_records.status NOT IN ('success', 'failure')
	`, scope.TenantID(), record.TicketID, record.CorrelationID, string(domain.OutcomeStarted), record.StartedAt)
	if err != nil {
		return fmt.Errorf("upsert started outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := r.GetOutcome(ctx, scope, record.CorrelationID)
		if getErr != nil {
			return getErr
		}
		if existing.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		return domain.ErrTenantMismatch
	}
	return nil
}

func (r *PostgresOutcomesRepository) RecordTerminal(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}
	if !record.Status.Terminal() {
		return errors.New("terminal write requires success or failure status")
	}

	// Single short statement, no surrounding transaction: the terminal
	// transition must never hold connections across external calls.
	tag, err := r.pool.Exec(ctx, `
		UPDATE outcome_records
		SET status = $3,
			completed_at = $4,
			duration_ms = $5,
			error_type = NULLIF($6, ''),
			error_message = NULLIF($7, ''),
			updated_at = NOW()
		WHERE tenant_id = $1
		  AND correlation_id = $2
		  AND status NOT IN ('success', 'failure')
	`, scope.TenantID(), record.CorrelationID, string(record.Status),
		record.CompletedAt, record.DurationMS, record.ErrorType, record.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update terminal outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := r.GetOutcome(ctx, scope, record.CorrelationID)
		if getErr != nil {
			return getErr
		}
		if existing.Status.Terminal() {
			return nil
		}
		return ErrNotFound
	}
	return nil
}

func (r *PostgresOutcomesRepository) GetOutcome(ctx context.Context, scope tenant.Scope, correlationID string) (domain.OutcomeRecord, error) {
	if !scope.Bound() {
		return domain.OutcomeRecord{}, domain.ErrNoTenantContext
	}

	row := r.pool.QueryRow(ctx, `
		SELECT tenant_id, ticket_id, correlation_id, status, started_at, completed_at, duration_ms, error_type, error_message
		FROM outcome_records
		WHERE tenant_id = $1 AND correlation_id = $2
	`, scope.TenantID(), correlationID)

	record, err := scanOutcome(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutcomeRecord{}, ErrNotFound
		}
		return domain.OutcomeRecord{}, fmt.Errorf("query outcome: %w", err)
	}
	return record, nil
}

func (r *PostgresOutcomesRepository) ListOutcomes(ctx context.Context, scope tenant.Scope, filter domain.OutcomeListFilter) ([]domain.OutcomeRecord, int, error) {
	if !scope.Bound() {
		return nil, 0, domain.ErrNoTenantContext
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	baseQuery, args := buildOutcomeFilters(scope, filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outcomes: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT tenant_id, ticket_id, correlation_id, status, started_at, completed_at, duration_ms, error_type, error_message
		%s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OutcomeRecord, 0)
	for rows.Next() {
		record, scanErr := scanOutcome(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("scan outcome: %w", scanErr)
		}
		items = append(items, record)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate outcomes: %w", rows.Err())
	}
	return items, total, nil
}

// buildOutcomeFilters always starts from the scope predicate; optional
// filters append numbered parameters, never concatenated values.
func buildOutcomeFilters(scope tenant.Scope, filter domain.OutcomeListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM outcome_records WHERE tenant_id = $1")

	args := []any{scope.TenantID()}
	argIndex := 2

	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}
	if filter.TicketID != "" {
		query.WriteString(fmt.Sprintf(" AND ticket_id = $%d", argIndex))
		args = append(args, filter.TicketID)
		argIndex++
	}
	if filter.From != nil {
		query.WriteString(fmt.Sprintf(" AND started_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query.WriteString(fmt.Sprintf(" AND started_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	return query.String(), args
}

func scanOutcome(row pgx.Row) (domain.OutcomeRecord, error) {
	var (
		record      domain.OutcomeRecord
		status      string
		completedAt pgtype.Timestamptz
		durationMS  pgtype.Int8
		errorType   pgtype.Text
		errorMsg    pgtype.Text
		startedAt   time.Time
	)
	err := row.Scan(
		&record.TenantID,
		&record.TicketID,
		&record.CorrelationID,
		&status,
		&startedAt,
		&completedAt,
		&durationMS,
		&errorType,
		&errorMsg,
	)
	if err != nil {
		return domain.OutcomeRecord{}, err
	}

	record.Status = domain.OutcomeStatus(status)
	record.StartedAt = startedAt
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time
	}
	if durationMS.Valid {
		record.DurationMS = durationMS.Int64
	}
	if errorType.Valid {
		record.ErrorType = errorType.String
	}
	if errorMsg.Valid {
		record.ErrorMessage = errorMsg.String
	}
	return record, nil
}
