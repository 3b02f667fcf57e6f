package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// Compile-time interface checks.
var (
	_ hook.Hook                    = (*Broker)(nil)
	_ hook.ExecutionStarted        = (*Broker)(nil)
	_ hook.ExecutionCompleted      = (*Broker)(nil)
	_ hook.ExecutionFailed         = (*Broker)(nil)
	_ hook.ExecutionCancelled      = (*Broker)(nil)
	_ hook.ExecutionContinuedAsNew = (*Broker)(nil)
	_ hook.ActivityScheduled       = (*Broker)(nil)
	_ hook.ActivityStarted         = (*Broker)(nil)
	_ hook.ActivityCompleted       = (*Broker)(nil)
	_ hook.ActivityFailed          = (*Broker)(nil)
	_ hook.ActivityRetrying        = (*Broker)(nil)
	_ hook.ActivityDLQ             = (*Broker)(nil)
	_ hook.TimerFired              = (*Broker)(nil)
	_ hook.SignalReceived          = (*Broker)(nil)
	_ hook.ScheduleFired           = (*Broker)(nil)
	_ hook.Shutdown                = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It registers as a lifecycle
// hook to receive engine events and fans them out to subscribers via
// topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Hook.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., the RWP server).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to its resolved topics plus any extra
// entity topics (run and queue channels for activity events).
func (b *Broker) publish(evt *Event, extra ...string) {
	topics := resolveTopics(evt, extra)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func executionData(r *workflow.Run) ExecutionEventData {
	return ExecutionEventData{
		RunID:       r.ID.String(),
		ExecutionID: r.ExecutionID.String(),
		Name:        r.Name,
		ScopeAppID:  r.ScopeAppID,
		ScopeOrgID:  r.ScopeOrgID,
	}
}

func activityData(t *activity.Task) ActivityEventData {
	return ActivityEventData{
		ActivityID: t.ID.String(),
		RunID:      t.RunID.String(),
		Name:       t.Name,
		TaskQueue:  t.TaskQueue,
		ScopeAppID: t.ScopeAppID,
		ScopeOrgID: t.ScopeOrgID,
	}
}

// activityTopics are the extra channels an activity event lands on.
func activityTopics(t *activity.Task) []string {
	return []string{RunTopic(t.RunID.String()), QueueTopic(t.TaskQueue)}
}

// ── Execution lifecycle hooks ───────────────────────

func (b *Broker) OnExecutionStarted(_ context.Context, r *workflow.Run) error {
	b.publish(&Event{
		Type:      EventExecutionStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data:      mustMarshal(executionData(r)),
	}, ExecutionTopic(r.ExecutionID.String()))
	return nil
}

func (b *Broker) OnExecutionCompleted(_ context.Context, r *workflow.Run, elapsed time.Duration) error {
	data := executionData(r)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventExecutionCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data:      mustMarshal(data),
	}, ExecutionTopic(r.ExecutionID.String()))
	return nil
}

func (b *Broker) OnExecutionFailed(_ context.Context, r *workflow.Run, runErr error) error {
	data := executionData(r)
	data.Error = runErr.Error()
	b.publish(&Event{
		Type:      EventExecutionFailed,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data:      mustMarshal(data),
	}, ExecutionTopic(r.ExecutionID.String()))
	return nil
}

func (b *Broker) OnExecutionCancelled(_ context.Context, r *workflow.Run, reason string) error {
	data := executionData(r)
	data.Reason = reason
	b.publish(&Event{
		Type:      EventExecutionCancelled,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data:      mustMarshal(data),
	}, ExecutionTopic(r.ExecutionID.String()))
	return nil
}

func (b *Broker) OnExecutionContinuedAsNew(_ context.Context, old *workflow.Run, newRunID id.RunID) error {
	data := executionData(old)
	data.NewRunID = newRunID.String()
	b.publish(&Event{
		Type:      EventExecutionContinued,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(old.ID.String()),
		Data:      mustMarshal(data),
	}, ExecutionTopic(old.ExecutionID.String()))
	return nil
}

// ── Activity lifecycle hooks ────────────────────────

func (b *Broker) OnActivityScheduled(_ context.Context, t *activity.Task) error {
	b.publish(&Event{
		Type:      EventActivityScheduled,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(activityData(t)),
	}, activityTopics(t)...)
	return nil
}

func (b *Broker) OnActivityStarted(_ context.Context, t *activity.Task) error {
	data := activityData(t)
	data.Attempt = t.Attempt
	b.publish(&Event{
		Type:      EventActivityStarted,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(data),
	}, activityTopics(t)...)
	return nil
}

func (b *Broker) OnActivityCompleted(_ context.Context, t *activity.Task, elapsed time.Duration) error {
	data := activityData(t)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventActivityCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(data),
	}, activityTopics(t)...)
	return nil
}

func (b *Broker) OnActivityFailed(_ context.Context, t *activity.Task, taskErr error) error {
	data := activityData(t)
	data.Error = taskErr.Error()
	b.publish(&Event{
		Type:      EventActivityFailed,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(data),
	}, activityTopics(t)...)
	return nil
}

func (b *Broker) OnActivityRetrying(_ context.Context, t *activity.Task, attempt int, nextRunAt time.Time) error {
	data := activityData(t)
	data.Attempt = attempt
	data.NextRunAt = nextRunAt.Format(time.RFC3339)
	b.publish(&Event{
		Type:      EventActivityRetrying,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(data),
	}, activityTopics(t)...)
	return nil
}

func (b *Broker) OnActivityDLQ(_ context.Context, t *activity.Task, taskErr error) error {
	data := activityData(t)
	data.Error = taskErr.Error()
	b.publish(&Event{
		Type:      EventActivityDLQ,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic(t.ID.String()),
		Data:      mustMarshal(data),
	}, activityTopics(t)...)
	return nil
}

// ── Timer, signal, and schedule hooks ───────────────

func (b *Broker) OnTimerFired(_ context.Context, runID id.RunID, timerID id.TimerID) error {
	b.publish(&Event{
		Type:      EventTimerFired,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(runID.String()),
		Data: mustMarshal(TimerEventData{
			RunID:   runID.String(),
			TimerID: timerID.String(),
		}),
	})
	return nil
}

func (b *Broker) OnSignalReceived(_ context.Context, runID id.RunID, name string) error {
	b.publish(&Event{
		Type:      EventSignalReceived,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(runID.String()),
		Data: mustMarshal(SignalEventData{
			RunID: runID.String(),
			Name:  name,
		}),
	})
	return nil
}

func (b *Broker) OnScheduleFired(_ context.Context, scheduleName string, executionID id.ExecutionID) error {
	b.publish(&Event{
		Type:      EventScheduleFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(ScheduleEventData{
			ScheduleName: scheduleName,
			ExecutionID:  executionID.String(),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
