package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/logging"
)

// RecorderConfig holds the periodic task intervals
type RecorderConfig struct {
	DumpInterval  time.Duration
	StateInterval time.Duration
	Retention     time.Duration
}

// DefaultRecorderConfig returns the default intervals
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		DumpInterval:  5 * time.Second,
		StateInterval: 30 * time.Second,
		Retention:     14 * 24 * time.Hour,
	}
}

// Recorder formats, persists and fans out events
type Recorder struct {
	formatter *Formatter
	store     Store
	cfg       RecorderConfig
	logger    *logging.Logger

	mu          sync.RWMutex
	subscribers map[int]chan *Event
	nextSub     int
	dropped     uint64
}

// NewRecorder creates a recorder
func NewRecorder(formatter *Formatter, store Store, cfg RecorderConfig, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.New("eventlog")
	}
	def := DefaultRecorderConfig()
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = def.DumpInterval
	}
	if cfg.StateInterval <= 0 {
		cfg.StateInterval = def.StateInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	return &Recorder{
		formatter:   formatter,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[int]chan *Event),
	}
}

// Store returns the underlying event store
func (r *Recorder) Store() Store {
	return r.store
}

// Record parses block into an event, persists it and publishes it
func (r *Recorder) Record(ctx context.Context, block string) (*Event, error) {
	event := &Event{
		Kind:      EventKind(block),
		EventID:   EventID(block),
		State:     EventState(block),
		Exception: EventException(block),
		Body:      block,
	}

	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("Failed to persist event", "kind", event.Kind, "event_id", event.EventID, "error", err)
		return nil, err
	}

	fields := []interface{}{"kind", event.Kind, "event_id", event.EventID, "state", event.State}
	if event.Kind == KindSEL {
		r.logger.Warn(Message(string(event.Kind)), append(fields, "exception", event.Exception.String())...)
	} else {
		r.logger.Debug(Message(string(event.Kind)), fields...)
	}

	r.publish(event)
	return event, nil
}

// DumpSensors records a sensor data dump
func (r *Recorder) DumpSensors(ctx context.Context) (*Event, error) {
	return r.Record(ctx, r.formatter.SDD())
}

// LogState records a system state log
func (r *Recorder) LogState(ctx context.Context) (*Event, error) {
	return r.Record(ctx, r.formatter.SSL())
}

// RecordError records a system error log for err under id
func (r *Recorder) RecordError(ctx context.Context, id string, err error) (*Event, error) {
	info := ""
	if err != nil {
		info = err.Error()
	}
	return r.Record(ctx, r.formatter.SEL(id, ExceptionFromError(err), info))
}

// RecordTransition records the state log after a flight mode change.
// It matches flight.TransitionFunc once bound to a context.
func (r *Recorder) RecordTransition(ctx context.Context, from, to flight.Mode) {
	r.logger.Info("Flight mode changed", "from", from.String(), "to", to.String())
	if _, err := r.LogState(ctx); err != nil {
		r.logger.Error("Failed to record transition", "error", err)
	}
}

// Subscribe returns a channel receiving every recorded event and a cancel
// function. Slow subscribers miss events rather than block the recorder.
func (r *Recorder) Subscribe(buffer int) (<-chan *Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *Event, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Dropped returns the number of events not delivered to slow subscribers
func (r *Recorder) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

func (r *Recorder) publish(event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			r.dropped++
		}
	}
}

// Run records sensor dumps and state logs at the configured intervals and
// prunes old events hourly, until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	dump := time.NewTicker(r.cfg.DumpInterval)
	defer dump.Stop()
	state := time.NewTicker(r.cfg.StateInterval)
	defer state.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	r.logger.Info("Event recorder started",
		"dump_interval", r.cfg.DumpInterval.String(),
		"state_interval", r.cfg.StateInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Event recorder stopped")
			return nil
		case <-dump.C:
			r.DumpSensors(ctx)
		case <-state.C:
			r.LogState(ctx)
		case <-prune.C:
			n, err := r.store.Prune(ctx, r.cfg.Retention)
			if err != nil {
				r.logger.Error("Event prune failed", "error", err)
			} else if n > 0 {
				r.logger.Info("Pruned old events", "count", n)
			}
		}
	}
}
