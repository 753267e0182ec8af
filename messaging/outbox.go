package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linehaul/store"
)

// OutboxStore is the slice of the store the drainer needs.
type OutboxStore interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]*store.OutboxMessage, error)
	AckOutbox(ctx context.Context, id int64) error
	IncrementOutboxRetries(ctx context.Context, id int64) error
}

// Sender publishes a raw payload to a topic.
type Sender interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

const outboxBatch = 50

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       OutboxStore
	client   Sender
	interval time.Duration
	log      zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewOutboxDrainer(db OutboxStore, client Sender, interval time.Duration, log zerolog.Logger) *OutboxDrainer {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop signals the drain loop and waits for it to exit.
func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	d.wg.Wait()
}

func (d *OutboxDrainer) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Drain(context.Background())
		}
	}
}

// Drain sends one batch of pending messages and returns how many were acked.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.db.ListPendingOutbox(ctx, outboxBatch)
	if err != nil {
		d.log.Error().Err(err).Msg("outbox: list pending")
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := d.client.Publish(pctx, msg.Topic, msg.TenantID, msg.Payload)
		cancel()
		if err != nil {
			d.log.Warn().Err(err).Str("topic", msg.Topic).Int64("id", msg.ID).Int("retries", msg.Retries+1).Msg("outbox: publish failed")
			if err := d.db.IncrementOutboxRetries(ctx, msg.ID); err != nil {
				d.log.Error().Err(err).Int64("id", msg.ID).Msg("outbox: increment retries")
			}
			continue
		}
		if err := d.db.AckOutbox(ctx, msg.ID); err != nil {
			d.log.Error().Err(err).Int64("id", msg.ID).Msg("outbox: ack")
			continue
		}
		sent++
	}
	return sent
}
