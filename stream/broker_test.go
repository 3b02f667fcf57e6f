package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicActivities)

	evt := &Event{
		Type:      EventActivityScheduled,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic("act-123"),
		Data:      json.RawMessage(`{"activity_id":"act-123"}`),
	}
	b.publish(evt)

	// Event should arrive on the subscriber channel.
	select {
	case received := <-sub.C():
		if received.Type != EventActivityScheduled {
			t.Errorf("Type = %q, want %q", received.Type, EventActivityScheduled)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerMultipleTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to firehose, which gets everything.
	firehose := b.Subscribe("firehose-sub", TopicFirehose)

	// Subscribe to just activities.
	actSub := b.Subscribe("act-sub", TopicActivities)

	// Publish an activity event.
	evt := &Event{
		Type:      EventActivityCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic("act-456"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Both should receive the event.
	for _, sub := range []*Subscriber{firehose, actSub} {
		select {
		case <-sub.C():
			// ok
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerRunTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to a specific run.
	sub := b.Subscribe("run-sub", RunTopic("run-abc"))

	// Publish event to that run.
	evt := &Event{
		Type:      EventExecutionCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-abc"),
		Data:      json.RawMessage(`{"run_id":"run-abc"}`),
	}
	b.publish(evt)

	select {
	case received := <-sub.C():
		if received.Type != EventExecutionCompleted {
			t.Errorf("Type = %q, want %q", received.Type, EventExecutionCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for run event")
	}

	// Publish event to a different run; it must NOT arrive.
	evt2 := &Event{
		Type:      EventExecutionStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-other"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt2)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different run")
	case <-time.After(50 * time.Millisecond):
		// ok, no event
	}
}

func TestBrokerActivityHookFanout(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	runID := id.NewRunID()
	task := &activity.Task{
		ID:        id.NewActivityID(),
		RunID:     runID,
		Name:      "charge-card",
		TaskQueue: "billing",
	}

	runSub := b.Subscribe("run-watcher", RunTopic(runID.String()))
	queueSub := b.Subscribe("queue-watcher", QueueTopic("billing"))

	if err := b.OnActivityScheduled(context.Background(), task); err != nil {
		t.Fatalf("OnActivityScheduled: %v", err)
	}

	for _, sub := range []*Subscriber{runSub, queueSub} {
		select {
		case received := <-sub.C():
			if received.Type != EventActivityScheduled {
				t.Errorf("%s: Type = %q, want %q", sub.ID(), received.Type, EventActivityScheduled)
			}
			var data ActivityEventData
			if err := json.Unmarshal(received.Data, &data); err != nil {
				t.Fatalf("%s: unmarshal data: %v", sub.ID(), err)
			}
			if data.Name != "charge-card" || data.TaskQueue != "billing" {
				t.Errorf("%s: data = %+v", sub.ID(), data)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerExecutionHookFanout(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	run := &workflow.Run{
		ID:          id.NewRunID(),
		ExecutionID: id.NewExecutionID(),
		Name:        "order-fulfillment",
	}

	execSub := b.Subscribe("exec-watcher", ExecutionTopic(run.ExecutionID.String()))

	if err := b.OnExecutionStarted(context.Background(), run); err != nil {
		t.Fatalf("OnExecutionStarted: %v", err)
	}

	select {
	case received := <-execSub.C():
		if received.Type != EventExecutionStarted {
			t.Errorf("Type = %q, want %q", received.Type, EventExecutionStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution event")
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	// Remove subscriber.
	b.RemoveSubscriber("sub-rm")

	evt := &Event{
		Type:      EventActivityScheduled,
		Timestamp: time.Now().UTC(),
		Topic:     ActivityTopic("a1"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicActivities)
	_ = b.Subscribe("s2", TopicExecutions, TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)

	evt := &Event{Type: EventActivityScheduled, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	// Should accept 2 events (initial credits).
	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	if !sub.send(evt) {
		t.Fatal("second send should succeed")
	}

	// Third should fail, no credits.
	if sub.send(evt) {
		t.Fatal("third send should fail (no credits)")
	}

	// Replenish credits.
	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}

	if !sub.send(evt) {
		t.Fatal("send after credit replenishment should succeed")
	}
}

func TestSubscriberFilter(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("filter-sub", 10, 100)
	sub.SetFilter(func(e *Event) bool {
		return e.Type == EventActivityFailed
	})

	// Should be rejected by filter.
	if sub.send(&Event{Type: EventActivityCompleted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("completed event should be filtered out")
	}

	// Should pass filter.
	if !sub.send(&Event{Type: EventActivityFailed, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("failed event should pass filter")
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicExecutions, true},
		{TopicActivities, true},
		{TopicFirehose, true},
		{"run:run-123", true},
		{"execution:exec-abc", true},
		{"activity:act-1", true},
		{"queue:default", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	// Unsubscribe s2 from topic-a.
	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	// UnsubscribeAll for s1.
	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	// Subscribe to multiple topics.
	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := &Event{Type: EventActivityScheduled, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		evt      *Event
		extra    []string
		expected []string
	}{
		{
			name:     "activity with run and queue channels",
			evt:      &Event{Type: EventActivityScheduled, Topic: "activity:a1"},
			extra:    []string{"run:r1", "queue:billing"},
			expected: []string{TopicFirehose, TopicActivities, "activity:a1", "run:r1", "queue:billing"},
		},
		{
			name:     "execution with execution channel",
			evt:      &Event{Type: EventExecutionStarted, Topic: "run:r1"},
			extra:    []string{"execution:e1"},
			expected: []string{TopicFirehose, TopicExecutions, "run:r1", "execution:e1"},
		},
		{
			name:     "schedule goes to firehose only",
			evt:      &Event{Type: EventScheduleFired, Topic: ""},
			expected: []string{TopicFirehose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics := resolveTopics(tt.evt, tt.extra)
			if len(topics) != len(tt.expected) {
				t.Errorf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
				return
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}
