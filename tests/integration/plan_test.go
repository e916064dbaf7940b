//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/plan"
)

func TestPlan_ExtensionAccumulates(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := env.PlanSvc.Grant(ctx, userID, plan.TypeDaily, 10000)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := env.PlanSvc.Debit(ctx, userID, 500); err != nil {
		t.Fatalf("debit: %v", err)
	}

	second, err := env.PlanSvc.Grant(ctx, userID, plan.TypeDaily, 10000)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if !second.Extended {
		t.Fatal("same-type grant should extend")
	}
	if second.Plan.TokenLimit != 20000 {
		t.Fatalf("expected accumulated limit 20000, got %d", second.Plan.TokenLimit)
	}
	if second.Plan.TokensUsed != 500 {
		t.Fatalf("extension must keep tokens_used, got %d", second.Plan.TokensUsed)
	}
	wantExpiry := first.Plan.ExpiresAt.AddDate(0, 0, 1)
	if !second.Plan.ExpiresAt.Truncate(time.Second).Equal(wantExpiry.Truncate(time.Second)) {
		t.Fatalf("expiry should extend from prior value: want %v, got %v", wantExpiry, second.Plan.ExpiresAt)
	}
}

func TestPlan_CrossTypeReplaces(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := env.PlanSvc.Grant(ctx, userID, plan.TypeDaily, 10000); err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if err := env.PlanSvc.Debit(ctx, userID, 900); err != nil {
		t.Fatalf("debit: %v", err)
	}

	grant, err := env.PlanSvc.Grant(ctx, userID, plan.TypeMonthly, 200000)
	if err != nil {
		t.Fatalf("monthly grant: %v", err)
	}
	if grant.Extended {
		t.Fatal("cross-type grant must replace, not extend")
	}
	if grant.Plan.TokensUsed != 0 {
		t.Fatalf("replacement starts fresh, got tokens_used %d", grant.Plan.TokensUsed)
	}

	active, err := env.PlanSvc.GetActive(ctx, userID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Type != plan.TypeMonthly {
		t.Fatalf("expected monthly plan active, got %s", active.Type)
	}
}

func TestPlan_StatusEndpoint(t *testing.T) {
	env := SetupTestEnv(t)
	userID := uuid.New()
	token := MintToken(t, env, userID, "user")

	// Without a plan the status is empty but the call succeeds.
	resp := DoRequest(t, env, "GET", "/api/v1/plan", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan status failed: %d", resp.StatusCode)
	}
	resp.Body.Close()

	if _, err := env.PlanSvc.Grant(context.Background(), userID, plan.TypeWeekly, 50000); err != nil {
		t.Fatalf("grant: %v", err)
	}

	resp = DoRequest(t, env, "GET", "/api/v1/plan", nil, token)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	if data["token_limit"].(float64) != 50000 {
		t.Fatalf("expected token_limit 50000, got %v", data["token_limit"])
	}
}

func TestPlan_SweepDeactivatesExpired(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	// Insert an already-expired active plan directly.
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO user_plans (user_id, plan_type, token_limit, starts_at, expires_at, is_active)
		VALUES ($1, 'daily', 1000, NOW() - INTERVAL '2 days', NOW() - INTERVAL '1 day', TRUE)`,
		userID)
	if err != nil {
		t.Fatalf("seeding expired plan: %v", err)
	}

	n, err := env.PlanSvc.DeactivateExpiredPlans(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one plan swept, got %d", n)
	}

	active, err := env.PlanSvc.GetActive(ctx, userID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active != nil {
		t.Fatal("expired plan should not be active after sweep")
	}
}
