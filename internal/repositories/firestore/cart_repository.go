package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts in Firestore. The document id is the user id,
// which gives the one-active-cart-per-user guarantee for free.
type CartRepository struct {
	coll *pfirestore.Collection[domain.Cart]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{coll: pfirestore.NewCollection[domain.Cart](provider, cartCollection)}, nil
}

// Get loads the cart for the given user id.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.coll == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.coll.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := doc.Data
	cart.ID = doc.ID
	cart.UserID = doc.ID
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if cart.Status == "" {
		cart.Status = domain.CartStatusActive
	}
	return cart, nil
}

// Upsert writes the whole cart document under the user id.
func (r *CartRepository) Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.coll == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	cart.ID = uid
	cart.UserID = uid
	if cart.Status == "" {
		cart.Status = domain.CartStatusActive
	}
	if err := r.coll.Set(ctx, uid, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// ListStale returns active carts whose last mutation predates idleSince.
func (r *CartRepository) ListStale(ctx context.Context, idleSince time.Time, limit int) ([]domain.Cart, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("cart repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("status", "==", string(domain.CartStatusActive)).
			Where("updatedAt", "<", idleSince.UTC()).
			OrderBy("updatedAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		cart := doc.Data
		cart.ID = doc.ID
		cart.UserID = doc.ID
		carts = append(carts, cart)
	}
	return carts, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
