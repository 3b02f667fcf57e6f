package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/client"
	"github.com/xraph/replay/engine"
	"github.com/xraph/replay/rwp"
	"github.com/xraph/replay/store/memory"
	"github.com/xraph/replay/stream"
	"github.com/xraph/replay/workflow"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupClientTest serves an RWP server on httptest and dials a Go client
// against it. Returns the client, engine, store, and a cleanup function.
func setupClientTest(t *testing.T) (*client.Client, *engine.Engine, *memory.Store, func()) {
	t.Helper()

	// 1. Build engine with memory store and stream broker.
	s := memory.New()
	rt, err := replay.New(
		replay.WithStore(s),
		replay.WithLogger(testLogger()),
		replay.WithConcurrency(2),
		replay.WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}

	broker := stream.NewBroker(testLogger())
	eng, err := engine.Build(rt, engine.WithHook(broker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("runtime start: %v", err)
	}

	// 2. Create RWP handler and server.
	logger := testLogger()
	handler := rwp.NewHandler(eng, broker, logger)
	srv := rwp.NewServer(broker, handler,
		rwp.WithAuth(rwp.NewAPIKeyAuthenticator(rwp.APIKeyEntry{
			Token: "test-token",
			Identity: rwp.Identity{
				Subject: "test-user",
				AppID:   "app-1",
				OrgID:   "org-1",
				Scopes:  []string{rwp.ScopeAll},
			},
		})),
		rwp.WithLogger(logger),
	)

	// 3. Serve the WebSocket endpoint and dial the Go client.
	ts := httptest.NewServer(srv)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, dialErr := client.DialContext(context.Background(), wsURL,
		client.WithToken("test-token"),
		client.WithLogger(logger),
	)
	if dialErr != nil {
		ts.Close()
		t.Fatalf("DialContext: %v", dialErr)
	}

	cleanup := func() {
		_ = c.Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = rt.Stop(ctx)
	}

	return c, eng, s, cleanup
}

// awaitRunState polls GetExecution until the run reaches the wanted state.
func awaitRunState(t *testing.T, c *client.Client, executionID, want string) map[string]any {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		raw, err := c.GetExecution(context.Background(), executionID)
		if err == nil {
			var run map[string]any
			if json.Unmarshal(raw, &run) == nil && run["state"] == want {
				return run
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// ── Connection Tests ──────────────────────────────────

func TestClient_DialAndClose(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	// Session ID should be assigned after auth.
	if c.SessionID() == "" {
		t.Error("expected non-empty session ID after dial")
	}

	// Close should not error.
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestClient_DialAuthFailure(t *testing.T) {
	// Set up server but dial with wrong token.
	s := memory.New()
	rt, err := replay.New(
		replay.WithStore(s),
		replay.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}

	broker := stream.NewBroker(testLogger())
	eng, err := engine.Build(rt, engine.WithHook(broker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	logger := testLogger()
	handler := rwp.NewHandler(eng, broker, logger)
	srv := rwp.NewServer(broker, handler,
		rwp.WithAuth(rwp.NewAPIKeyAuthenticator(rwp.APIKeyEntry{
			Token: "valid-token",
			Identity: rwp.Identity{
				Subject: "user",
				Scopes:  []string{rwp.ScopeAll},
			},
		})),
		rwp.WithLogger(logger),
	)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, dialErr := client.DialContext(context.Background(), wsURL,
		client.WithToken("wrong-token"),
		client.WithLogger(logger),
	)
	if dialErr == nil {
		t.Fatal("expected error for invalid token")
	}
	if !strings.Contains(dialErr.Error(), "auth") {
		t.Errorf("error = %q, want to contain 'auth'", dialErr.Error())
	}
}

// ── Execution Tests ───────────────────────────────────

func TestClient_StartExecution(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("order-pipeline",
		func(_ *workflow.Context, _ struct {
			OrderID string `json:"order_id"`
		}) (any, error) {
			return nil, nil
		},
	))

	result, err := c.StartExecution(context.Background(), "order-pipeline", map[string]string{
		"order_id": "ORD-001",
	})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	if result.ExecutionID == "" {
		t.Error("expected non-empty execution_id")
	}
	if result.RunID == "" {
		t.Error("expected non-empty run_id")
	}
	if result.State != "running" {
		t.Errorf("state = %q, want running", result.State)
	}
}

func TestClient_GetExecution(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("get-wf",
		func(_ *workflow.Context, _ struct{}) (any, error) {
			return nil, nil
		},
	))

	result, err := c.StartExecution(context.Background(), "get-wf", struct{}{})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	raw, getErr := c.GetExecution(context.Background(), result.ExecutionID)
	if getErr != nil {
		t.Fatalf("GetExecution: %v", getErr)
	}
	if raw == nil {
		t.Fatal("expected non-nil response data")
	}

	var resp map[string]interface{}
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		t.Fatalf("unmarshal: %v", jsonErr)
	}
	if resp["execution_id"] != result.ExecutionID {
		t.Errorf("response execution_id = %v, want %q", resp["execution_id"], result.ExecutionID)
	}
}

func TestClient_SignalAndQuery(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("signal-wf",
		func(wf *workflow.Context, _ struct{}) (any, error) {
			received := ""
			wf.SetQueryHandler("last", func(_ []byte) (any, error) {
				return received, nil
			})
			var payload struct {
				Value string `json:"value"`
			}
			if err := wf.WaitSignal("go", &payload); err != nil {
				return nil, err
			}
			received = payload.Value
			return received, nil
		},
	))

	result, err := c.StartExecution(context.Background(), "signal-wf", struct{}{})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	if sigErr := c.Signal(context.Background(), result.ExecutionID, "go", map[string]string{
		"value": "hello",
	}); sigErr != nil {
		t.Fatalf("Signal: %v", sigErr)
	}

	awaitRunState(t, c, result.ExecutionID, "completed")
}

func TestClient_Cancel(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("cancel-wf",
		func(wf *workflow.Context, _ struct{}) (any, error) {
			var sig json.RawMessage
			if err := wf.WaitSignal("never", &sig); err != nil {
				return nil, err
			}
			return nil, nil
		},
	))

	result, err := c.StartExecution(context.Background(), "cancel-wf", struct{}{})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	if cancelErr := c.Cancel(context.Background(), result.ExecutionID, "test teardown"); cancelErr != nil {
		t.Fatalf("Cancel: %v", cancelErr)
	}

	awaitRunState(t, c, result.ExecutionID, "cancelled")
}

func TestClient_GetHistory(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("history-wf",
		func(_ *workflow.Context, _ struct{}) (any, error) {
			return "done", nil
		},
	))

	result, err := c.StartExecution(context.Background(), "history-wf", struct{}{})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	awaitRunState(t, c, result.ExecutionID, "completed")

	raw, histErr := c.GetHistory(context.Background(), result.ExecutionID, false)
	if histErr != nil {
		t.Fatalf("GetHistory: %v", histErr)
	}

	var events []map[string]any
	if jsonErr := json.Unmarshal(raw, &events); jsonErr != nil {
		t.Fatalf("unmarshal history: %v", jsonErr)
	}
	if len(events) == 0 {
		t.Error("expected at least one history event")
	}
}

// ── Subscription Tests ────────────────────────────────

func TestClient_SubscribeAndUnsubscribe(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	ch, err := c.Subscribe(context.Background(), "executions")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if ch == nil {
		t.Fatal("expected non-nil channel")
	}

	if unsubErr := c.Unsubscribe(context.Background(), "executions"); unsubErr != nil {
		t.Fatalf("Unsubscribe: %v", unsubErr)
	}
}

func TestClient_Watch(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("watch-wf",
		func(_ *workflow.Context, _ struct{}) (any, error) {
			return nil, nil
		},
	))

	result, err := c.StartExecution(context.Background(), "watch-wf", struct{}{})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	// Watch uses Subscribe("run:<runID>").
	ch, watchErr := c.Watch(context.Background(), result.RunID)
	if watchErr != nil {
		t.Fatalf("Watch: %v", watchErr)
	}
	if ch == nil {
		t.Fatal("expected non-nil watch channel")
	}
}

// ── Stats Test ────────────────────────────────────────

func TestClient_Stats(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	raw, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if raw == nil {
		t.Fatal("expected non-nil stats data")
	}

	var stats map[string]interface{}
	if jsonErr := json.Unmarshal(raw, &stats); jsonErr != nil {
		t.Fatalf("stats unmarshal: %v", jsonErr)
	}
	if _, ok := stats["broker"]; !ok {
		t.Error("expected broker stats")
	}
}

// ── Error Handling Tests ──────────────────────────────

func TestClient_GetExecution_NotFound(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	_, err := c.GetExecution(context.Background(), "nonexistent-execution-id")
	if err == nil {
		t.Fatal("expected error for nonexistent execution")
	}
}

func TestClient_StartExecution_Unknown(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	_, err := c.StartExecution(context.Background(), "unknown-workflow", struct{}{})
	if err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestClient_Cancel_NotFound(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	err := c.Cancel(context.Background(), "nonexistent-execution-id", "")
	if err == nil {
		t.Fatal("expected error for cancelling nonexistent execution")
	}
}

// ── Context Cancellation Tests ────────────────────────

func TestClient_ContextTimeout(t *testing.T) {
	c, _, _, cleanup := setupClientTest(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond) // Ensure timeout fires.

	_, err := c.StartExecution(ctx, "any-workflow", struct{}{})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// ── Multiple Operations Test ──────────────────────────

func TestClient_MultipleSequentialOperations(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterWorkflow(eng, workflow.NewWorkflow("multi-wf",
		func(_ *workflow.Context, _ struct{}) (any, error) {
			return nil, nil
		},
	))

	ctx := context.Background()
	ids := make([]string, 5)
	for i := range 5 {
		result, err := c.StartExecution(ctx, "multi-wf", map[string]int{"n": i})
		if err != nil {
			t.Fatalf("StartExecution[%d]: %v", i, err)
		}
		ids[i] = result.ExecutionID
	}

	for i, execID := range ids {
		raw, err := c.GetExecution(ctx, execID)
		if err != nil {
			t.Errorf("GetExecution[%d] (%s): %v", i, execID, err)
			continue
		}
		if raw == nil {
			t.Errorf("GetExecution[%d]: expected non-nil data", i)
		}
	}
}

// ── Full E2E Test ─────────────────────────────────────

func TestClient_ExecutionE2E(t *testing.T) {
	c, eng, _, cleanup := setupClientTest(t)
	defer cleanup()

	engine.RegisterActivity(eng, activity.NewDefinition("greet",
		func(_ context.Context, name string) (any, error) {
			return "hello " + name, nil
		}))
	engine.RegisterWorkflow(eng, workflow.NewWorkflow("e2e-wf",
		func(wf *workflow.Context, in struct {
			Name string `json:"name"`
		}) (any, error) {
			var greeting string
			if err := wf.ExecuteActivity("greet", in.Name, &greeting); err != nil {
				return nil, err
			}
			return greeting, nil
		},
	))

	ctx := context.Background()

	result, err := c.StartExecution(ctx, "e2e-wf", map[string]string{
		"name": "World",
	}, client.WithTaskQueue("default"))
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected non-empty run_id")
	}

	run := awaitRunState(t, c, result.ExecutionID, "completed")
	if run["name"] != "e2e-wf" {
		t.Errorf("run name = %v, want e2e-wf", run["name"])
	}
}
