package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads the catalog.
type ProductRepository struct {
	coll *pfirestore.Collection[domain.Product]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{coll: pfirestore.NewCollection[domain.Product](provider, productCollection)}, nil
}

// FindByID loads a product by id.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.coll == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.coll.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	product := doc.Data
	product.ID = doc.ID
	return product, nil
}

// List returns a page of catalog products.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.coll == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("name", firestore.Asc).Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for _, doc := range docs {
		product := doc.Data
		product.ID = doc.ID
		page.Items = append(page.Items, product)
	}
	return page, nil
}

// AdjustStock applies a relative stock change via atomic increment. Products
// with untracked stock are left alone by callers.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) error {
	if r == nil || r.coll == nil {
		return errors.New("product repository not initialised")
	}
	return r.coll.Update(ctx, strings.TrimSpace(productID), []firestore.Update{
		{Path: "stock", Value: firestore.Increment(delta)},
	})
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
