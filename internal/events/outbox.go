package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher is what engine services see. Publish is best-effort and never
// returns an error that would roll back the surrounding state change.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// OutboxRow is a persisted event awaiting redelivery.
type OutboxRow struct {
	ID        int64
	Event     Event
	Attempts  int
	CreatedAt time.Time
}

// OutboxRepository stores events whose immediate publish failed.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event Event) error
	ListPending(ctx context.Context, limit int) ([]OutboxRow, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

type pgxOutboxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &pgxOutboxRepository{pool: pool}
}

func (r *pgxOutboxRepository) Enqueue(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.event_outbox").
		Columns("event_type", "entity_id", "payload").
		Values(event.Type, event.EntityID, payload).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue outbox query failed: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("enqueue outbox event failed: %w", err)
	}
	return nil
}

func (r *pgxOutboxRepository) ListPending(ctx context.Context, limit int) ([]OutboxRow, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("id", "payload", "attempts", "created_at").
		From("public.event_outbox").
		Where(squirrel.Eq{"sent_at": nil}).
		Where(squirrel.Lt{"attempts": 10}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list outbox query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox events failed: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		var payload []byte
		if err := rows.Scan(&row.ID, &payload, &row.Attempts, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row failed: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Event); err != nil {
			return nil, fmt.Errorf("unmarshal outbox event failed: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *pgxOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.event_outbox").
		Set("sent_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent query failed: %w", err)
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *pgxOutboxRepository) MarkFailed(ctx context.Context, id int64) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.event_outbox").
		Set("attempts", squirrel.Expr("attempts + 1")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark failed query failed: %w", err)
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

// KafkaPublisher attempts an immediate publish and falls back to the outbox.
// The booking state change is already durable when Publish runs; a delivery
// failure only delays the downstream notification.
type KafkaPublisher struct {
	producer *Producer
	outbox   OutboxRepository
}

func NewKafkaPublisher(producer *Producer, outbox OutboxRepository) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, outbox: outbox}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		log.Printf("publish %s for %s failed, queuing to outbox: %v", event.Type, event.EntityID, err)
		if p.outbox != nil {
			if qerr := p.outbox.Enqueue(ctx, event); qerr != nil {
				log.Printf("outbox enqueue for %s failed: %v", event.EntityID, qerr)
			}
		}
	}
}

// Retryer drains the outbox, republishing pending events. It is safe to run
// concurrently with live publishes; duplicate delivery is acceptable downstream.
type Retryer struct {
	producer *Producer
	outbox   OutboxRepository
	batch    int
}

func NewRetryer(producer *Producer, outbox OutboxRepository, batch int) *Retryer {
	return &Retryer{producer: producer, outbox: outbox, batch: batch}
}

func (r *Retryer) Run(ctx context.Context) error {
	rows, err := r.outbox.ListPending(ctx, r.batch)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := r.producer.Publish(ctx, row.Event); err != nil {
			log.Printf("outbox retry %d failed: %v", row.ID, err)
			if err := r.outbox.MarkFailed(ctx, row.ID); err != nil {
				return err
			}
			continue
		}
		if err := r.outbox.MarkSent(ctx, row.ID); err != nil {
			return err
		}
	}
	return nil
}
