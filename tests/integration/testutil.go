//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codexgate/codexgate/internal/api"
	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/cache"
	"github.com/codexgate/codexgate/internal/config"
	"github.com/codexgate/codexgate/internal/plan"
	"github.com/codexgate/codexgate/internal/ratelimit"
	"github.com/codexgate/codexgate/internal/redemption"
	"github.com/codexgate/codexgate/internal/usage"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	JWT         *auth.JWTManager
	PlanSvc     *plan.Service
	CodeSvc     *redemption.Service
	UsageSvc    *usage.Service
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "codexgate_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/codexgate_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Services
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", 15*time.Minute)

	limits := ratelimit.NewLimits(config.LimitsConfig{
		User:       config.RoleLimit{MaxRequests: 60, RequestWindow: 60 * time.Second, MaxTokens: 10000},
		Admin:      config.RoleLimit{MaxRequests: 120, RequestWindow: 60 * time.Second, MaxTokens: 50000},
		SuperAdmin: config.RoleLimit{MaxRequests: 300, RequestWindow: 60 * time.Second, MaxTokens: 200000},
	})
	limiter := ratelimit.New(redisClient, limits)
	limiterHandler := ratelimit.NewHandler(limiter, nil)

	planSvc := plan.NewService(plan.NewPostgresRepository(pool), nil)
	planHandler := plan.NewHandler(planSvc)

	codeSvc := redemption.NewService(redemption.NewPostgresRepository(pool), planSvc, nil, logger)
	codeHandler := redemption.NewHandler(codeSvc)

	usageSvc := usage.NewService(usage.NewPostgresRepository(pool), planSvc, nil, logger)
	usageHandler := usage.NewHandler(usageSvc)

	memStore := cache.NewMemoryStore(time.Minute)
	t.Cleanup(memStore.Close)
	hybridStore := cache.NewHybrid(cache.NewRedisStore(redisClient), memStore)
	cacheHandler := cache.NewHandler(hybridStore)

	router := api.NewRouter(pool, nil, nil, api.RouterConfig{}, api.HandlerSet{
		Redeem:       codeHandler.Redeem,
		PlanStatus:   planHandler.Status,
		Limits:       limiterHandler.Limits,
		Admit:        limiterHandler.Admit,
		RecordUsage:  usageHandler.Record,
		UsageStats:   usageHandler.Stats,
		UsageHistory: usageHandler.History,
		UsageDaily:   usageHandler.Daily,

		CreateCode:      codeHandler.Create,
		CreateCodeBatch: codeHandler.CreateBatch,
		ListCodes:       codeHandler.List,
		DeleteCode:      codeHandler.Delete,
		SystemUsage:     usageHandler.SystemStats,
		CacheInspect:    cacheHandler.Inspect,
		CacheSet:        cacheHandler.Set,
		CacheRemove:     cacheHandler.Remove,

		AuthMiddleware:  auth.Middleware(jwtManager),
		AdminMiddleware: auth.RequireAdmin(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		JWT:         jwtManager,
		PlanSvc:     planSvc,
		CodeSvc:     codeSvc,
		UsageSvc:    usageSvc,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

// MintToken signs an access token for a fresh or given user.
func MintToken(t *testing.T, env *TestEnv, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := env.JWT.GenerateAccessToken(userID.String(), role)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return token
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
