package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/teleshop/bot/internal/domain"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const transactionCollection = "transactions"

// TransactionRepository persists payment attempt records.
type TransactionRepository struct {
	coll *pfirestore.Collection[domain.Transaction]
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{coll: pfirestore.NewCollection[domain.Transaction](provider, transactionCollection)}, nil
}

// Insert creates the transaction document.
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) error {
	if r == nil || r.coll == nil {
		return errors.New("transaction repository not initialised")
	}
	doc, err := r.coll.Doc(ctx, tx.ID)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, tx); err != nil {
		return pfirestore.WrapError("transactions.insert", err)
	}
	return nil
}

// Update replaces the transaction document.
func (r *TransactionRepository) Update(ctx context.Context, tx domain.Transaction) error {
	if r == nil || r.coll == nil {
		return errors.New("transaction repository not initialised")
	}
	return r.coll.Set(ctx, tx.ID, tx)
}

// FindByID loads a transaction by id.
func (r *TransactionRepository) FindByID(ctx context.Context, txID string) (domain.Transaction, error) {
	if r == nil || r.coll == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	doc, err := r.coll.Get(ctx, strings.TrimSpace(txID))
	if err != nil {
		return domain.Transaction{}, err
	}
	tx := doc.Data
	tx.ID = doc.ID
	return tx, nil
}

// FindByOrder returns the most recent transaction for an order.
func (r *TransactionRepository) FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	if r == nil || r.coll == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return domain.Transaction{}, errors.New("transaction repository: order id is required")
	}

	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("orderId", "==", oid).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(docs) == 0 {
		return domain.Transaction{}, pfirestore.NotFound("transactions.findByOrder", fmt.Sprintf("no transaction for order %s", oid))
	}
	tx := docs[0].Data
	tx.ID = docs[0].ID
	return tx, nil
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)
