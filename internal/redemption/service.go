package redemption

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codexgate/codexgate/internal/events"
	"github.com/codexgate/codexgate/internal/metrics"
	"github.com/codexgate/codexgate/internal/plan"
)

var (
	// ErrInvalidCode means no such code exists.
	ErrInvalidCode = errors.New("invalid redemption code")
	// ErrCodeExpired means the code exists but its expiry has passed.
	ErrCodeExpired = errors.New("redemption code expired")
	// ErrAlreadyUsed means another redemption claimed the code first.
	ErrAlreadyUsed = errors.New("redemption code already used")
)

// codeAlphabet omits easily-confused characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const generatedCodeLength = 20

// Service redeems codes and manages their lifecycle.
type Service struct {
	repo      Repository
	plans     *plan.Service
	publisher *events.Publisher
	logger    *slog.Logger
}

func NewService(repo Repository, plans *plan.Service, publisher *events.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, plans: plans, publisher: publisher, logger: logger}
}

// Canonicalize normalizes user-supplied code input: codes are stored and
// compared in upper case with surrounding whitespace removed.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem claims the code for the user and grants the plan it carries.
// The claim is a storage-level conditional update, so concurrent redemptions
// of the same code produce exactly one winner.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, rawCode string) (*plan.Grant, error) {
	code := Canonicalize(rawCode)
	if code == "" {
		metrics.RedemptionsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCode
	}

	existing, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		metrics.RedemptionsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCode
	}
	// Expired codes are rejected but kept in the ledger untouched.
	if existing.Expired(time.Now()) {
		metrics.RedemptionsTotal.WithLabelValues("expired").Inc()
		return nil, ErrCodeExpired
	}
	if existing.IsUsed {
		metrics.RedemptionsTotal.WithLabelValues("already_used").Inc()
		return nil, ErrAlreadyUsed
	}

	claimed, err := s.repo.Claim(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		// Lost the race to a concurrent redemption.
		metrics.RedemptionsTotal.WithLabelValues("already_used").Inc()
		return nil, ErrAlreadyUsed
	}

	grant, err := s.plans.Grant(ctx, userID, claimed.PlanType, claimed.TokenLimit)
	if err != nil {
		return nil, fmt.Errorf("granting plan for code %s: %w", code, err)
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()
	s.logger.Info("code redeemed",
		"code", code,
		"user_id", userID,
		"plan_type", claimed.PlanType,
		"token_limit", claimed.TokenLimit,
		"extended", grant.Extended)

	s.publisher.CodeRedeemed(ctx, events.RedemptionEvent{
		Code:       code,
		UserID:     userID.String(),
		PlanType:   string(claimed.PlanType),
		TokenLimit: claimed.TokenLimit,
		Extended:   grant.Extended,
		RedeemedAt: time.Now().UTC(),
	})

	return grant, nil
}

// Create stores a single code. A blank Code field gets a generated value.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy uuid.UUID) (*Code, error) {
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	c := &Code{
		Code:        Canonicalize(req.Code),
		PlanType:    req.PlanType,
		TokenLimit:  req.TokenLimit,
		ExpiresAt:   expiresAt,
		CreatedBy:   &createdBy,
		Description: req.Description,
	}

	for attempt := 0; ; attempt++ {
		if c.Code == "" || attempt > 0 {
			c.Code, err = generateCode("")
			if err != nil {
				return nil, err
			}
		}
		err = s.repo.Create(ctx, c)
		if err == nil {
			return c, nil
		}
		// Retry once with a fresh code on a unique-constraint collision,
		// but only for generated codes.
		if isUniqueViolation(err) && req.Code == "" && attempt == 0 {
			continue
		}
		return nil, err
	}
}

// CreateBatch generates count random codes sharing the same plan parameters.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest, createdBy uuid.UUID) ([]*Code, error) {
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	prefix := Canonicalize(req.Prefix)
	codes := make([]*Code, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		value, err := generateCode(prefix)
		if err != nil {
			return nil, err
		}
		codes = append(codes, &Code{
			Code:        value,
			PlanType:    req.PlanType,
			TokenLimit:  req.TokenLimit,
			ExpiresAt:   expiresAt,
			CreatedBy:   &createdBy,
			Description: req.Description,
		})
	}

	if err := s.repo.CreateBatch(ctx, codes); err != nil {
		return nil, err
	}

	s.logger.Info("batch of codes created", "count", len(codes), "plan_type", req.PlanType, "created_by", createdBy)
	return codes, nil
}

// Delete removes a code by ID. Used codes stay deletable: the plan they
// granted is unaffected.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrInvalidCode
	}
	return nil
}

// List returns codes matching the filter plus the unpaginated total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Code, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func generateCode(prefix string) (string, error) {
	n := generatedCodeLength - len(prefix)
	if n < 8 {
		n = 8
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return prefix + string(buf), nil
}

func parseExpiry(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid expires_at: %w", err)
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
