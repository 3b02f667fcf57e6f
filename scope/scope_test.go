package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/replay/scope"
)

func TestCaptureRestoreRoundTrip(t *testing.T) {
	ctx := scope.Restore(context.Background(), "app_1", "org_1")

	appID, orgID := scope.Capture(ctx)
	if appID != "app_1" || orgID != "org_1" {
		t.Fatalf("Capture = %q, %q", appID, orgID)
	}
}

func TestCaptureWithoutScope(t *testing.T) {
	appID, orgID := scope.Capture(context.Background())
	if appID != "" || orgID != "" {
		t.Fatalf("Capture on bare context = %q, %q, want empty", appID, orgID)
	}
}

func TestRestoreEmptyIsNoOp(t *testing.T) {
	ctx := scope.Restore(context.Background(), "", "")
	if _, ok := scope.From(ctx); ok {
		t.Fatal("empty Restore attached a scope")
	}
}

func TestAllowed(t *testing.T) {
	unscoped := context.Background()
	tenant := scope.With(context.Background(), scope.Scope{AppID: "app_1", OrgID: "org_1"})
	other := scope.With(context.Background(), scope.Scope{AppID: "app_2"})

	cases := []struct {
		name         string
		ctx          context.Context
		appID, orgID string
		want         bool
	}{
		{"unrestricted record", tenant, "", "", true},
		{"matching tenant", tenant, "app_1", "org_1", true},
		{"app-only record", tenant, "app_1", "", true},
		{"wrong app", other, "app_1", "org_1", false},
		{"caller without scope", unscoped, "app_1", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scope.Allowed(tc.ctx, tc.appID, tc.orgID); got != tc.want {
				t.Errorf("Allowed = %v, want %v", got, tc.want)
			}
		})
	}
}
