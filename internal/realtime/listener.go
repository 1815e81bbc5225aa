package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// RefreshFunc re-fetches one named common-data slice for a screen.
type RefreshFunc func(ctx context.Context, name string, source model.CommonDataSource)

// changeEvent is the payload published on the common-data channel.
type changeEvent struct {
	Key string `json:"key"`
}

// subscription is one mounted screen's descriptor table and refresh hook.
type subscription struct {
	table   model.SourceTable
	refresh RefreshFunc
}

// Listener subscribes to the shared common-data channel and translates
// change events into partial refreshes for every mounted screen whose
// descriptor table names the changed collection. A nil Redis client
// degrades the feature to "never refreshes automatically".
type Listener struct {
	client  *redis.Client
	channel string
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	screens map[string]subscription

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewListener creates a listener for the named channel. A nil metrics
// disables recording.
func NewListener(client *redis.Client, channel string, metrics *observability.Metrics, logger *zap.Logger) *Listener {
	if channel == "" {
		channel = "common-data"
	}
	return &Listener{
		client:  client,
		channel: channel,
		metrics: metrics,
		logger:  logger,
		screens: make(map[string]subscription),
		done:    make(chan struct{}),
	}
}

// Register mounts a screen: change events whose key appears in the table
// will trigger its refresh hook until Unregister is called.
func (l *Listener) Register(screenKey string, table model.SourceTable, refresh RefreshFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.screens[screenKey] = subscription{table: table, refresh: refresh}
}

// Unregister unmounts a screen.
func (l *Listener) Unregister(screenKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.screens, screenKey)
}

// Start subscribes to the channel and dispatches events until the context
// is cancelled or Close is called. It returns immediately when no Redis
// client is configured.
func (l *Listener) Start(ctx context.Context) error {
	if l.client == nil {
		l.logger.Info("realtime listener disabled, no redis client configured")
		return nil
	}

	l.pubsub = l.client.Subscribe(ctx, l.channel)
	// Force the subscription to establish before we report started.
	if _, err := l.pubsub.Receive(ctx); err != nil {
		return err
	}

	l.logger.Info("realtime listener subscribed", zap.String("channel", l.channel))

	go l.loop(ctx)
	return nil
}

// HealthCheck reports whether the Redis connection is alive. A listener
// without a client is healthy by definition.
func (l *Listener) HealthCheck(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}

// Close unsubscribes and stops the dispatch loop.
func (l *Listener) Close() error {
	close(l.done)
	if l.pubsub != nil {
		return l.pubsub.Close()
	}
	return nil
}

func (l *Listener) loop(ctx context.Context) {
	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.dispatch(ctx, msg.Payload)
		}
	}
}

// dispatch routes one change event to every mounted screen that knows the
// named collection. Unknown keys are ignored; repeated identical events
// just repeat the refresh, which is idempotent.
func (l *Listener) dispatch(ctx context.Context, payload string) {
	var event changeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.Key == "" {
		if l.metrics != nil {
			l.metrics.RecordRealtimeEvent("malformed")
		}
		l.logger.Warn("dropping malformed common-data event", zap.String("payload", payload))
		return
	}

	l.mu.Lock()
	type target struct {
		refresh RefreshFunc
		source  model.CommonDataSource
	}
	var targets []target
	for _, sub := range l.screens {
		if source, ok := sub.table[event.Key]; ok {
			targets = append(targets, target{refresh: sub.refresh, source: source})
		}
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		if l.metrics != nil {
			l.metrics.RecordRealtimeEvent("ignored")
		}
		return
	}
	if l.metrics != nil {
		l.metrics.RecordRealtimeEvent("dispatched")
	}

	l.logger.Debug("common-data change event",
		zap.String("key", event.Key),
		zap.Int("screens", len(targets)),
	)
	for _, tgt := range targets {
		tgt.refresh(ctx, event.Key, tgt.source)
	}
}
