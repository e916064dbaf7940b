//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/plan"
	"github.com/codexgate/codexgate/internal/redemption"
)

func createCode(t *testing.T, env *TestEnv, planType plan.Type, tokenLimit int64) *redemption.Code {
	t.Helper()
	code, err := env.CodeSvc.Create(context.Background(), redemption.CreateRequest{
		PlanType:   planType,
		TokenLimit: tokenLimit,
	}, uuid.New())
	if err != nil {
		t.Fatalf("creating code: %v", err)
	}
	return code
}

func TestRedeem_EndToEnd(t *testing.T) {
	env := SetupTestEnv(t)
	code := createCode(t, env, plan.TypeDaily, 10000)
	userID := uuid.New()
	token := MintToken(t, env, userID, "user")

	resp := DoRequest(t, env, "POST", "/api/v1/redeem", map[string]string{"code": code.Code}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	p := data["plan"].(map[string]any)
	if p["token_limit"].(float64) != 10000 {
		t.Fatalf("expected token_limit 10000, got %v", p["token_limit"])
	}

	// Second attempt conflicts.
	resp = DoRequest(t, env, "POST", "/api/v1/redeem", map[string]string{"code": code.Code}, token)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on reuse, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRedeem_ConcurrentSingleWinner(t *testing.T) {
	env := SetupTestEnv(t)
	code := createCode(t, env, plan.TypeWeekly, 50000)

	const racers = 16
	var wg sync.WaitGroup
	successes := make(chan uuid.UUID, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := uuid.New()
			_, err := env.CodeSvc.Redeem(context.Background(), userID, code.Code)
			if err == nil {
				successes <- userID
				return
			}
			if !errors.Is(err, redemption.ErrAlreadyUsed) {
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(successes)

	var winners []uuid.UUID
	for id := range successes {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}

	// The winner holds the plan; nobody else does.
	p, err := env.PlanSvc.GetActive(context.Background(), winners[0])
	if err != nil || p == nil {
		t.Fatalf("winner has no active plan: %v", err)
	}
	if p.TokenLimit != 50000 {
		t.Fatalf("expected token_limit 50000, got %d", p.TokenLimit)
	}
}

func TestRedeem_ExpiredCode(t *testing.T) {
	env := SetupTestEnv(t)
	expiry := time.Now().Add(-time.Hour).Format(time.RFC3339)
	code, err := env.CodeSvc.Create(context.Background(), redemption.CreateRequest{
		PlanType:   plan.TypeDaily,
		TokenLimit: 10000,
		ExpiresAt:  &expiry,
	}, uuid.New())
	if err != nil {
		t.Fatalf("creating code: %v", err)
	}

	token := MintToken(t, env, uuid.New(), "user")
	resp := DoRequest(t, env, "POST", "/api/v1/redeem", map[string]string{"code": code.Code}, token)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expected 410 for expired code, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The expired code stays in the ledger, unused.
	var isUsed bool
	err = env.Pool.QueryRow(context.Background(),
		`SELECT is_used FROM redemption_codes WHERE code = $1`, code.Code).Scan(&isUsed)
	if err != nil {
		t.Fatalf("querying code: %v", err)
	}
	if isUsed {
		t.Fatal("expired code must stay unused")
	}
}

func TestRedeem_InvalidCode(t *testing.T) {
	env := SetupTestEnv(t)
	token := MintToken(t, env, uuid.New(), "user")

	resp := DoRequest(t, env, "POST", "/api/v1/redeem", map[string]string{"code": "DOESNOTEXIST"}, token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRedeem_Unauthenticated(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/redeem", map[string]string{"code": "ANYTHING"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminCodes_RequiresAdminRole(t *testing.T) {
	env := SetupTestEnv(t)
	userToken := MintToken(t, env, uuid.New(), "user")

	resp := DoRequest(t, env, "POST", "/api/v1/admin/codes", map[string]any{
		"plan_type":   "daily",
		"token_limit": 1000,
	}, userToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	adminToken := MintToken(t, env, uuid.New(), "admin")
	resp = DoRequest(t, env, "POST", "/api/v1/admin/codes", map[string]any{
		"plan_type":   "daily",
		"token_limit": 1000,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminCodes_Batch(t *testing.T) {
	env := SetupTestEnv(t)
	adminToken := MintToken(t, env, uuid.New(), "admin")

	resp := DoRequest(t, env, "POST", "/api/v1/admin/codes/batch", map[string]any{
		"count":       5,
		"prefix":      "INTG-",
		"plan_type":   "monthly",
		"token_limit": 200000,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	codes := result["data"].([]any)
	if len(codes) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(codes))
	}
}
