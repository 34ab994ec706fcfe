package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

var (
	// ErrServiceNotFound is returned when a ticket references an unknown or inactive service.
	ErrServiceNotFound = errors.New("service not found")
	// ErrNumberConflict is returned when the (epoch, number) pair is already taken.
	// Nothing is committed, so the issue can be attempted again.
	ErrNumberConflict = errors.New("ticket number conflict")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// StateMutation changes a locked queue state. Returning an error aborts the transaction.
type StateMutation func(state *domain.QueueState) error

// QueueRepository owns the ticket sequence and the queue cursor. Every mutating call
// is a single atomic transaction against the shared queue row.
type QueueRepository interface {
	IssueTicket(ctx context.Context, serviceID int64) (*domain.Ticket, error)
	MutateState(ctx context.Context, mutate StateMutation) (*domain.QueueState, error)
	GetState(ctx context.Context) (*domain.QueueState, error)
	ListTickets(ctx context.Context, epoch int64, limit, offset int) ([]domain.Ticket, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository instantiates the Postgres backed repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) IssueTicket(ctx context.Context, serviceID int64) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM services WHERE id=$1 AND is_active)`, serviceID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check service: %w", err)
	}
	if !exists {
		return nil, ErrServiceNotFound
	}

	// The UPDATE takes the queue row lock, serializing issuers and cursor mutations.
	ticket := &domain.Ticket{ID: uuid.NewString(), ServiceID: serviceID}
	const takeNumber = `
        UPDATE queue_state SET next_number = next_number + 1, revision = revision + 1
        WHERE id = 1
        RETURNING next_number - 1, epoch`
	if err := tx.QueryRow(ctx, takeNumber).Scan(&ticket.Number, &ticket.Epoch); err != nil {
		return nil, fmt.Errorf("take ticket number: %w", err)
	}

	const insert = `
        INSERT INTO tickets (id, number, service_id, epoch)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, insert,
		ticket.ID,
		ticket.Number,
		ticket.ServiceID,
		ticket.Epoch,
	).Scan(&ticket.CreatedAt); err != nil {
		return nil, translateInsertError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit issue tx: %w", err)
	}
	return ticket, nil
}

func (r *queueRepository) MutateState(ctx context.Context, mutate StateMutation) (*domain.QueueState, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin cursor tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const lock = `
        SELECT current_number, start_from, epoch, next_number, revision, updated_at
        FROM queue_state WHERE id = 1
        FOR UPDATE`
	var state domain.QueueState
	if err := tx.QueryRow(ctx, lock).Scan(
		&state.CurrentNumber,
		&state.StartFrom,
		&state.Epoch,
		&state.NextNumber,
		&state.Revision,
		&state.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("lock queue state: %w", err)
	}

	if err := mutate(&state); err != nil {
		return nil, err
	}

	const update = `
        UPDATE queue_state
        SET current_number=$1, start_from=$2, epoch=$3, next_number=$4, revision=revision+1, updated_at=NOW()
        WHERE id = 1
        RETURNING revision, updated_at`
	if err := tx.QueryRow(ctx, update,
		state.CurrentNumber,
		state.StartFrom,
		state.Epoch,
		state.NextNumber,
	).Scan(&state.Revision, &state.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update queue state: %w", err)
	}

	const outstanding = `SELECT COUNT(*) FROM tickets WHERE epoch=$1 AND number > $2`
	if err := tx.QueryRow(ctx, outstanding, state.Epoch, state.CurrentNumber).Scan(&state.OutstandingCount); err != nil {
		return nil, fmt.Errorf("count outstanding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cursor tx: %w", err)
	}
	return &state, nil
}

func (r *queueRepository) GetState(ctx context.Context) (*domain.QueueState, error) {
	const query = `
        SELECT q.current_number, q.start_from, q.epoch, q.next_number, q.revision, q.updated_at,
               (SELECT COUNT(*) FROM tickets t WHERE t.epoch = q.epoch AND t.number > q.current_number)
        FROM queue_state q WHERE q.id = 1`
	var state domain.QueueState
	if err := r.pool.QueryRow(ctx, query).Scan(
		&state.CurrentNumber,
		&state.StartFrom,
		&state.Epoch,
		&state.NextNumber,
		&state.Revision,
		&state.UpdatedAt,
		&state.OutstandingCount,
	); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *queueRepository) ListTickets(ctx context.Context, epoch int64, limit, offset int) ([]domain.Ticket, error) {
	limit, offset = normalizePage(limit, offset)
	const query = `
        SELECT id, number, service_id, epoch, created_at
        FROM tickets WHERE epoch=$1
        ORDER BY number ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, epoch, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Number,
			&ticket.ServiceID,
			&ticket.Epoch,
			&ticket.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func translateInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrNumberConflict
		case pgForeignKeyViolation:
			return ErrServiceNotFound
		}
	}
	return fmt.Errorf("insert ticket: %w", err)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
