package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

// The in-memory repositories back the service when no Postgres DSN is configured
// and in tests. They follow the same contracts as the Postgres implementations,
// including pgx.ErrNoRows for missing rows.

type memoryQueueRepository struct {
	mu       sync.Mutex
	services ServiceRepository
	state    domain.QueueState
	tickets  []domain.Ticket
	now      func() time.Time
}

// NewMemoryQueueRepository returns a single-process queue store. A single mutex
// serializes every operation.
func NewMemoryQueueRepository(services ServiceRepository) QueueRepository {
	return &memoryQueueRepository{
		services: services,
		state:    domain.NewQueueState(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *memoryQueueRepository) IssueTicket(ctx context.Context, serviceID int64) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svc, err := r.services.GetByID(ctx, serviceID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	if !svc.Active {
		return nil, ErrServiceNotFound
	}

	ticket := domain.Ticket{
		ID:        uuid.NewString(),
		Number:    r.state.NextNumber,
		ServiceID: serviceID,
		Epoch:     r.state.Epoch,
		CreatedAt: r.now(),
	}
	for _, existing := range r.tickets {
		if existing.Epoch == ticket.Epoch && existing.Number == ticket.Number {
			return nil, ErrNumberConflict
		}
	}
	r.state.NextNumber++
	r.state.Revision++
	r.tickets = append(r.tickets, ticket)
	return &ticket, nil
}

func (r *memoryQueueRepository) MutateState(ctx context.Context, mutate StateMutation) (*domain.QueueState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := r.state
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.Revision = r.state.Revision + 1
	next.UpdatedAt = r.now()
	r.state = next
	return r.snapshotLocked(), nil
}

func (r *memoryQueueRepository) GetState(ctx context.Context) (*domain.QueueState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.snapshotLocked(), nil
}

func (r *memoryQueueRepository) ListTickets(ctx context.Context, epoch int64, limit, offset int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit, offset = normalizePage(limit, offset)
	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Epoch == epoch {
			matched = append(matched, ticket)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Number < matched[j].Number })
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]domain.Ticket(nil), matched[offset:end]...), nil
}

func (r *memoryQueueRepository) snapshotLocked() *domain.QueueState {
	state := r.state
	state.OutstandingCount = 0
	for _, ticket := range r.tickets {
		if ticket.Epoch == state.Epoch && ticket.Number > state.CurrentNumber {
			state.OutstandingCount++
		}
	}
	return &state
}

// MemoryServiceRepository is an in-memory service catalog.
type MemoryServiceRepository struct {
	mu       sync.RWMutex
	services map[int64]domain.Service
	nextID   int64
}

// NewMemoryServiceRepository creates an empty catalog.
func NewMemoryServiceRepository() *MemoryServiceRepository {
	return &MemoryServiceRepository{services: make(map[int64]domain.Service), nextID: 1}
}

// Add stores a service and assigns its ID.
func (r *MemoryServiceRepository) Add(svc domain.Service) domain.Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc.ID = r.nextID
	r.nextID++
	now := time.Now().UTC()
	svc.CreatedAt, svc.UpdatedAt = now, now
	r.services[svc.ID] = svc
	return svc
}

func (r *MemoryServiceRepository) GetByID(_ context.Context, id int64) (*domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &svc, nil
}

func (r *MemoryServiceRepository) ListActive(_ context.Context) ([]domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Service, 0, len(r.services))
	for _, svc := range r.services {
		if svc.Active {
			result = append(result, svc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memoryStaffRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.StaffMember
	email map[string]string
}

// NewMemoryStaffRepository creates an empty staff store.
func NewMemoryStaffRepository() StaffRepository {
	return &memoryStaffRepository{
		byID:  make(map[string]domain.StaffMember),
		email: make(map[string]string),
	}
}

func (r *memoryStaffRepository) Create(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeEmail(staff.Email)
	if _, exists := r.email[key]; exists {
		return ErrDuplicateStaff
	}
	now := time.Now().UTC()
	staff.ID = uuid.NewString()
	staff.Email = key
	staff.CreatedAt, staff.UpdatedAt = now, now
	r.byID[staff.ID] = *staff
	r.email[key] = staff.ID
	return nil
}

func (r *memoryStaffRepository) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	staff, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &staff, nil
}

func (r *memoryStaffRepository) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.email[normalizeEmail(email)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	staff := r.byID[id]
	return &staff, nil
}
