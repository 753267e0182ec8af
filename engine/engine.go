package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linehaul/board"
	"linehaul/config"
	"linehaul/dispatch"
	"linehaul/logging"
	"linehaul/messaging"
	"linehaul/metrics"
	"linehaul/store"
)

const healthInterval = 30 * time.Second

type Config struct {
	AppConfig  *config.Config
	DB         *store.DB
	Board      *board.Manager      // nil disables board refresh
	MsgClient  MessagingClient     // nil disables the outbox drainer and stop consumer
	Telematics Positioner          // nil disables stop position enrichment
	Metrics    *metrics.Collectors // nil disables lifecycle metrics
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Engine owns the dispatcher, the event bus and every side effect hung off it.
type Engine struct {
	cfg          *config.Config
	db           *store.DB
	board        *board.Manager
	msgClient    MessagingClient
	telematics   Positioner
	metrics      *metrics.Collectors
	dispatcher   *dispatch.Dispatcher
	drainer      *messaging.OutboxDrainer
	Events       *EventBus
	log          zerolog.Logger
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	boardMu      sync.Mutex
	msgConnected bool
}

// New builds the dispatcher and wires event handlers. Background loops wait for Start.
func New(c Config) *Engine {
	now := c.Clock
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		cfg:        c.AppConfig,
		db:         c.DB,
		board:      c.Board,
		msgClient:  c.MsgClient,
		telematics: c.Telematics,
		metrics:    c.Metrics,
		Events:     NewEventBus(),
		log:        c.Logger,
		stopChan:   make(chan struct{}),
	}
	e.dispatcher = dispatch.NewDispatcher(e.db, e.db,
		dispatch.WithPublisher(&busPublisher{bus: e.Events, log: e.log}),
		dispatch.WithAuditor(e.db),
		dispatch.WithLogger(logging.Component(e.log, "dispatch")),
		dispatch.WithLocation(e.cfg.Location()),
		dispatch.WithClock(now),
	)
	e.wireEventHandlers()
	return e
}

func (e *Engine) Start() {
	if e.msgClient != nil {
		mlog := logging.Component(e.log, "messaging")
		e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval, mlog)
		e.drainer.Start()

		consumer := messaging.NewConsumer(e.msgClient, e.cfg.Messaging.StopEventsTopic, &stopApplier{dispatcher: e.dispatcher}, mlog)
		if err := consumer.Start(); err != nil {
			e.log.Warn().Err(err).Msg("engine: stop consumer subscribe")
		}
	}

	if e.board != nil {
		today := e.dispatcher.Today()
		e.async(func(ctx context.Context) {
			n, err := e.board.RebuildAll(ctx, today)
			if err != nil {
				e.log.Warn().Err(err).Msg("engine: board rebuild")
				return
			}
			e.log.Info().Int("terminals", n).Str("date", today).Msg("engine: boards rebuilt")
		})
	}

	e.checkConnectionStatus()
	e.wg.Add(1)
	go e.connectionHealthLoop()

	e.log.Info().Msg("engine: started")
}

// Stop ends background loops and waits for in-flight side effects.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	if e.drainer != nil {
		e.drainer.Stop()
	}
	e.wg.Wait()
	e.log.Info().Msg("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                    { return e.db }
func (e *Engine) AppConfig() *config.Config        { return e.cfg }
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }
func (e *Engine) Board() *board.Manager            { return e.board }

// async runs fn in the background with a bounded context. Stop waits for it.
func (e *Engine) async(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient == nil {
		return
	}
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else if e.msgConnected {
		e.msgConnected = false
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}
