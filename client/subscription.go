package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/replay/rwp"
	"github.com/xraph/replay/stream"
)

// Subscribe subscribes to a stream topic and returns a channel of events.
// The channel is closed when the client disconnects or Unsubscribe is called.
//
// Topics follow the replay stream convention:
//   - "run:<runID>"         — Events for a specific workflow run
//   - "execution:<execID>"  — Events for a whole execution lineage
//   - "activity:<taskID>"   — Events for a specific activity task
//   - "queue:<name>"        — Activity events for a task queue
//   - "executions"          — All execution lifecycle events
//   - "activities"          — All activity lifecycle events
//   - "firehose"            — Everything
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *stream.Event, error) {
	// Send subscribe request.
	_, err := c.request(ctx, rwp.MethodSubscribe, rwp.SubscribeRequest{
		Channel: channel,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", channel, err)
	}

	ch := make(chan *stream.Event, 64)
	c.subs.Store(channel, ch)

	return ch, nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	_, err := c.request(ctx, rwp.MethodUnsubscribe, rwp.UnsubscribeRequest{
		Channel: channel,
	})

	// Close and remove the local channel regardless.
	if val, ok := c.subs.LoadAndDelete(channel); ok {
		ch := val.(chan *stream.Event) //nolint:errcheck // subs map always stores chan *stream.Event
		close(ch)
	}

	return err
}

// Watch subscribes to events for a specific workflow run and returns an
// event channel. This is a convenience method that subscribes to
// "run:<runID>".
func (c *Client) Watch(ctx context.Context, runID string) (<-chan *stream.Event, error) {
	return c.Subscribe(ctx, stream.RunTopic(runID))
}

// WatchExecution subscribes to events for a whole execution lineage,
// including runs created by continue-as-new.
func (c *Client) WatchExecution(ctx context.Context, executionID string) (<-chan *stream.Event, error) {
	return c.Subscribe(ctx, stream.ExecutionTopic(executionID))
}

// Stats retrieves broker and connection statistics from the server.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodStats, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
