package webhooks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository is the persistence interface for subscriptions and deliveries.
// Both PostgresRepository and MemoryRepository implement this interface.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByAccount(ctx context.Context, account string) ([]*Subscription, error)
	// ListByEvent returns the active subscriptions of account listening
	// for eventType.
	ListByEvent(ctx context.Context, eventType, account string) ([]*Subscription, error)
	// ListActive returns every active subscription regardless of account,
	// for endpoint health probing.
	ListActive(ctx context.Context) ([]*Subscription, error)
	// SetActive flips a subscription's active flag.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// ── PostgreSQL ────────────────────────────────────────────────────────────

// PostgresRepository persists subscriptions to PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	query := `INSERT INTO webhook_subscriptions (id, account, url, events, secret, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.Account, sub.URL, sub.Events, sub.Secret, sub.Active, sub.CreatedAt,
	)
	return err
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	query := `SELECT id, account, url, events, secret, active, created_at
	          FROM webhook_subscriptions WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)

	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.Account, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// ListByAccount implements Repository.
func (r *PostgresRepository) ListByAccount(ctx context.Context, account string) ([]*Subscription, error) {
	query := `SELECT id, account, url, events, secret, active, created_at
	          FROM webhook_subscriptions WHERE account = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, account)
}

// ListByEvent implements Repository.
func (r *PostgresRepository) ListByEvent(ctx context.Context, eventType, account string) ([]*Subscription, error) {
	query := `SELECT id, account, url, events, secret, active, created_at
	          FROM webhook_subscriptions
	          WHERE active = true AND account = $2 AND $1 = ANY(events)
	          ORDER BY created_at`
	return r.list(ctx, query, eventType, account)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.Account, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// ListActive implements Repository.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Subscription, error) {
	query := `SELECT id, account, url, events, secret, active, created_at
	          FROM webhook_subscriptions WHERE active = true ORDER BY created_at`
	return r.list(ctx, query)
}

// SetActive implements Repository.
func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_subscriptions SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery implements Repository.
func (r *PostgresRepository) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	query := `INSERT INTO webhook_deliveries (id, subscription_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EventType,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

// ── In-memory ─────────────────────────────────────────────────────────────

// MemoryRepository is an in-memory Repository for tests and single-process
// deployments without a database.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription
	deliveries []*Delivery
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*Subscription)}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

// GetByID implements Repository.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListByAccount implements Repository.
func (r *MemoryRepository) ListByAccount(_ context.Context, account string) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []*Subscription
	for _, sub := range r.subs {
		if sub.Account == account {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	return subs, nil
}

// ListByEvent implements Repository.
func (r *MemoryRepository) ListByEvent(_ context.Context, eventType, account string) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []*Subscription
	for _, sub := range r.subs {
		if !sub.Active || sub.Account != account {
			continue
		}
		for _, ev := range sub.Events {
			if ev == eventType {
				cp := *sub
				subs = append(subs, &cp)
				break
			}
		}
	}
	return subs, nil
}

// ListActive implements Repository.
func (r *MemoryRepository) ListActive(_ context.Context) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []*Subscription
	for _, sub := range r.subs {
		if sub.Active {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	return subs, nil
}

// SetActive implements Repository.
func (r *MemoryRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.Active = active
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// RecordDelivery implements Repository.
func (r *MemoryRepository) RecordDelivery(_ context.Context, d *Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()
	cp := *d
	r.deliveries = append(r.deliveries, &cp)
	return nil
}

// Deliveries returns a snapshot of recorded deliveries (test helper).
func (r *MemoryRepository) Deliveries() []*Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}
