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

const userCollection = "users"

// UserRepository stores shop users keyed by Telegram user id.
type UserRepository struct {
	coll *pfirestore.Collection[domain.User]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{coll: pfirestore.NewCollection[domain.User](provider, userCollection)}, nil
}

// FindByID loads a user by id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.coll == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.coll.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	user := doc.Data
	user.ID = doc.ID
	return user, nil
}

// Upsert writes the user document under the user id.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if r == nil || r.coll == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(user.ID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	user.ID = uid
	if err := r.coll.Set(ctx, uid, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// CreditBalance adds delta to the user's internal balance atomically.
func (r *UserRepository) CreditBalance(ctx context.Context, userID string, delta int64) error {
	if r == nil || r.coll == nil {
		return errors.New("user repository not initialised")
	}
	return r.coll.Update(ctx, strings.TrimSpace(userID), []firestore.Update{
		{Path: "balance", Value: firestore.Increment(delta)},
	})
}

// ListAdmins returns every user flagged as admin.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("user repository not initialised")
	}
	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("admin", "==", true)
	})
	if err != nil {
		return nil, err
	}
	admins := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		user := doc.Data
		user.ID = doc.ID
		admins = append(admins, user)
	}
	return admins, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
