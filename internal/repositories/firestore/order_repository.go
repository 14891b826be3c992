package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order documents.
type OrderRepository struct {
	coll *pfirestore.Collection[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{coll: pfirestore.NewCollection[domain.Order](provider, orderCollection)}, nil
}

// Insert creates the order document; fails with a conflict if it already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.coll == nil {
		return errors.New("order repository not initialised")
	}
	doc, err := r.coll.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, order); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.coll == nil {
		return errors.New("order repository not initialised")
	}
	return r.coll.Set(ctx, order.ID, order)
}

// FindByID loads an order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.coll == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.coll.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data
	order.ID = doc.ID
	return order, nil
}

// List returns a page of orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.coll == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	cursor, err := decodeOrderCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.CreatedAt)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			page.NextPageToken = encodeOrderCursor(orderCursor{CreatedAt: docs[i-1].Data.CreatedAt})
			break
		}
		order := doc.Data
		order.ID = doc.ID
		page.Items = append(page.Items, order)
	}
	return page, nil
}

// ListStalePending returns pending orders created before pendingSince.
func (r *OrderRepository) ListStalePending(ctx context.Context, pendingSince time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("status", "==", string(domain.OrderStatusPending)).
			Where("createdAt", "<", pendingSince.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data
		order.ID = doc.ID
		orders = append(orders, order)
	}
	return orders, nil
}

type orderCursor struct {
	CreatedAt time.Time `json:"createdAt"`
}

func encodeOrderCursor(c orderCursor) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeOrderCursor(token string) (*orderCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("orders.list: invalid page token: %w", err)
	}
	var c orderCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("orders.list: invalid page token: %w", err)
	}
	return &c, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
