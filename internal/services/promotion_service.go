package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/repositories"
)

// Promotion service errors.
var (
	// ErrPromotionInvalid covers codes that do not exist, are inactive, are
	// outside their validity window or have hit a usage cap.
	ErrPromotionInvalid = errors.New("promotion invalid")
	// ErrPromotionIneligible covers codes that exist and are live but do not
	// apply to the cart at hand.
	ErrPromotionIneligible  = errors.New("promotion not eligible")
	ErrPromotionConflict    = errors.New("promotion code already exists")
	ErrPromotionUnavailable = errors.New("promotion storage unavailable")
)

// promotionError folds collected validation violations into one sentinel.
// Lifecycle failures (expiry, caps, inactive) map to ErrPromotionInvalid;
// cart-shape failures (amount bounds, product and category rules) map to
// ErrPromotionIneligible. The wrapped message keeps every reason so callers
// can surface the full list.
func promotionError(violations []PromotionViolation) error {
	sentinel := ErrPromotionIneligible
	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		switch v.Code {
		case ViolationNotActive, ViolationNotStarted, ViolationExpired,
			ViolationGlobalCap, ViolationPerUserCap:
			sentinel = ErrPromotionInvalid
		}
		reasons = append(reasons, v.Message)
	}
	if len(reasons) == 0 {
		return fmt.Errorf("%w: promotion does not apply", sentinel)
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(reasons, "; "))
}

// PromotionServiceDeps wires the collaborators for NewPromotionService.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Audit      AuditLogService
	Clock      func() time.Time
	IDGen      func() string
	Logger     Logger
}

type promotionService struct {
	promotions repositories.PromotionRepository
	audit      AuditLogService
	clock      func() time.Time
	idGen      func() string
	logger     Logger
}

// NewPromotionService validates dependencies and returns the promotion
// management service.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service requires promotion repository")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		promotions: deps.Promotions,
		audit:      deps.Audit,
		clock:      func() time.Time { return clock().UTC() },
		idGen:      idGen,
		logger:     logger,
	}, nil
}

var _ PromotionService = (*promotionService)(nil)

// GetByCode looks up a promotion by its normalized code. Unknown and
// malformed codes both surface as ErrPromotionInvalid so callers cannot probe
// the catalog of codes.
func (s *promotionService) GetByCode(ctx context.Context, code string) (Promotion, error) {
	normalized, err := NormalizePromoCode(code)
	if err != nil {
		return Promotion{}, fmt.Errorf("%w: %v", ErrPromotionInvalid, err)
	}
	promo, err := s.promotions.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return Promotion{}, fmt.Errorf("%w: code %s not found", ErrPromotionInvalid, normalized)
		}
		return Promotion{}, s.translateRepoError(err)
	}
	return promo, nil
}

// Create registers a new promotion definition. Codes are unique; a second
// promotion with the same code fails with ErrPromotionConflict.
func (s *promotionService) Create(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promo := cmd.Promotion
	if err := ValidatePromotionDefinition(promo); err != nil {
		return Promotion{}, err
	}
	normalized, err := NormalizePromoCode(promo.Code)
	if err != nil {
		return Promotion{}, err
	}
	promo.Code = normalized

	if _, err := s.promotions.FindByCode(ctx, normalized); err == nil {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionConflict, normalized)
	} else if !isRepoNotFound(err) {
		return Promotion{}, s.translateRepoError(err)
	}

	now := s.clock()
	promo.ID = "promo_" + s.idGen()
	promo.UsageCount = 0
	promo.Usage = nil
	promo.CreatedAt = now
	promo.UpdatedAt = now

	if err := s.promotions.Insert(ctx, promo); err != nil {
		return Promotion{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "promotion.create", promo.ID, map[string]any{
		"code": promo.Code,
		"type": string(promo.Type),
	})
	s.logger(ctx, "promotion.created", map[string]any{
		"promotionId": promo.ID,
		"code":        promo.Code,
	})
	return promo, nil
}

// Update rewrites the definition of an existing promotion. The usage counter
// and history are owned by the redemption path and never overwritten here.
func (s *promotionService) Update(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promo := cmd.Promotion
	if strings.TrimSpace(promo.ID) == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrValidation)
	}
	if err := ValidatePromotionDefinition(promo); err != nil {
		return Promotion{}, err
	}
	normalized, err := NormalizePromoCode(promo.Code)
	if err != nil {
		return Promotion{}, err
	}
	promo.Code = normalized

	current, err := s.promotions.FindByID(ctx, promo.ID)
	if err != nil {
		if isRepoNotFound(err) {
			return Promotion{}, fmt.Errorf("%w: promotion %s not found", ErrPromotionInvalid, promo.ID)
		}
		return Promotion{}, s.translateRepoError(err)
	}
	if current.Code != normalized {
		if _, err := s.promotions.FindByCode(ctx, normalized); err == nil {
			return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionConflict, normalized)
		} else if !isRepoNotFound(err) {
			return Promotion{}, s.translateRepoError(err)
		}
	}

	promo.UsageCount = current.UsageCount
	promo.Usage = current.Usage
	promo.CreatedAt = current.CreatedAt
	promo.UpdatedAt = s.clock()

	if err := s.promotions.Update(ctx, promo); err != nil {
		return Promotion{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "promotion.update", promo.ID, map[string]any{
		"code": promo.Code,
	})
	return promo, nil
}

// Deactivate turns a promotion off without deleting its redemption history.
func (s *promotionService) Deactivate(ctx context.Context, promotionID string, actorID string) error {
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return fmt.Errorf("%w: promotion id is required", ErrValidation)
	}
	if err := s.promotions.Deactivate(ctx, id, s.clock()); err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: promotion %s not found", ErrPromotionInvalid, id)
		}
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, actorID, "promotion.deactivate", id, nil)
	s.logger(ctx, "promotion.deactivated", map[string]any{"promotionId": id})
	return nil
}

func (s *promotionService) List(ctx context.Context, activeOnly bool) (domain.CursorPage[Promotion], error) {
	page, err := s.promotions.List(ctx, repositories.PromotionListFilter{ActiveOnly: activeOnly})
	if err != nil {
		return domain.CursorPage[Promotion]{}, s.translateRepoError(err)
	}
	return page, nil
}

// RecordUsage appends a redemption entry and bumps the usage counter. The
// counter increment is atomic in the store; concurrent redemptions may still
// briefly overshoot a cap because eligibility was checked earlier.
func (s *promotionService) RecordUsage(ctx context.Context, promotionID string, userID string) error {
	if strings.TrimSpace(promotionID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: promotion id and user id are required", ErrValidation)
	}
	usage := domain.PromotionUsage{UserID: userID, UsedAt: s.clock()}
	if err := s.promotions.RecordUsage(ctx, promotionID, usage); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *promotionService) recordAudit(ctx context.Context, actorID, action, targetRef string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, AuditRecordCommand{
		ActorID:   actorID,
		Action:    action,
		TargetRef: targetRef,
		Details:   details,
	}); err != nil {
		s.logger(ctx, "promotion.audit_failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (s *promotionService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPromotionInvalid, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPromotionConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPromotionUnavailable, err)
		}
	}
	return err
}
