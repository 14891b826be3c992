package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

const counterCollection = "counters"

type counterDocument struct {
	Value    int64  `firestore:"value"`
	Step     int64  `firestore:"step,omitempty"`
	MaxValue *int64 `firestore:"maxValue,omitempty"`
}

// CounterRepository hands out monotonic sequence numbers inside a Firestore
// transaction. Used for human-readable order numbers.
type CounterRepository struct {
	provider *pfirestore.Provider
	coll     *pfirestore.Collection[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		coll:     pfirestore.NewCollection[counterDocument](provider, counterCollection),
	}, nil
}

// Next increments the counter by step and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counter repository: counter id is required")
	}
	if step <= 0 {
		step = 1
	}

	ref, err := r.coll.Doc(ctx, id)
	if err != nil {
		return 0, err
	}

	var next int64
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc counterDocument
		if snap != nil && snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}

		next = doc.Value + step
		if doc.MaxValue != nil && next > *doc.MaxValue {
			return fmt.Errorf("%w: counter %s at %d", repositories.ErrCounterExhausted, id, doc.Value)
		}
		doc.Value = next
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Configure sets increment behaviour and bounds for a counter.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return errors.New("counter repository: counter id is required")
	}

	ref, err := r.coll.Doc(ctx, id)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc counterDocument
		if snap != nil && snap.Exists() {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}
		if cfg.Step > 0 {
			doc.Step = cfg.Step
		}
		if cfg.MaxValue != nil {
			doc.MaxValue = cfg.MaxValue
		}
		if cfg.InitialValue != nil && doc.Value == 0 {
			doc.Value = *cfg.InitialValue
		}
		return tx.Set(ref, doc)
	})
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)
