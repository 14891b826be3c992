package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const promotionCollection = "promotions"

// PromotionRepository persists promotion definitions and their usage history.
type PromotionRepository struct {
	coll *pfirestore.Collection[domain.Promotion]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{coll: pfirestore.NewCollection[domain.Promotion](provider, promotionCollection)}, nil
}

// Insert creates the promotion document.
func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	if r == nil || r.coll == nil {
		return errors.New("promotion repository not initialised")
	}
	doc, err := r.coll.Doc(ctx, promotion.ID)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, promotion); err != nil {
		return pfirestore.WrapError("promotions.insert", err)
	}
	return nil
}

// Update replaces the promotion document.
func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	if r == nil || r.coll == nil {
		return errors.New("promotion repository not initialised")
	}
	return r.coll.Set(ctx, promotion.ID, promotion)
}

// Deactivate flips the active flag without touching the rest of the document.
func (r *PromotionRepository) Deactivate(ctx context.Context, promotionID string, at time.Time) error {
	if r == nil || r.coll == nil {
		return errors.New("promotion repository not initialised")
	}
	return r.coll.Update(ctx, strings.TrimSpace(promotionID), []firestore.Update{
		{Path: "active", Value: false},
		{Path: "updatedAt", Value: at.UTC()},
	})
}

// FindByID loads a promotion by document id.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	if r == nil || r.coll == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	doc, err := r.coll.Get(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return domain.Promotion{}, err
	}
	promo := doc.Data
	promo.ID = doc.ID
	return promo, nil
}

// FindByCode resolves a promotion by its normalised code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.coll == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.NotFound("promotions.findByCode", fmt.Sprintf("no promotion with code %s", normalized))
	}
	promo := docs[0].Data
	promo.ID = docs[0].ID
	return promo, nil
}

// List returns a page of promotions.
func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	if r == nil || r.coll == nil {
		return domain.CursorPage[domain.Promotion]{}, errors.New("promotion repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}

	page := domain.CursorPage[domain.Promotion]{Items: make([]domain.Promotion, 0, len(docs))}
	for _, doc := range docs {
		promo := doc.Data
		promo.ID = doc.ID
		page.Items = append(page.Items, promo)
	}
	return page, nil
}

// RecordUsage appends the usage entry and bumps the redemption counter with
// the store's atomic increment. This is the write concurrent redemptions race
// on, so it must not be a read-modify-write.
func (r *PromotionRepository) RecordUsage(ctx context.Context, promotionID string, usage domain.PromotionUsage) error {
	if r == nil || r.coll == nil {
		return errors.New("promotion repository not initialised")
	}
	return r.coll.Update(ctx, strings.TrimSpace(promotionID), []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(1)},
		{Path: "usage", Value: firestore.ArrayUnion(usage)},
		{Path: "updatedAt", Value: usage.UsedAt.UTC()},
	})
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
