package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

type promotionFixture struct {
	svc   PromotionService
	repo  *memPromotionRepo
	audit *stubAudit
	now   time.Time
}

func newPromotionFixture(t *testing.T, promos ...domain.Promotion) *promotionFixture {
	t.Helper()
	f := &promotionFixture{
		repo:  newMemPromotionRepo(promos...),
		audit: &stubAudit{},
		now:   time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewPromotionService(PromotionServiceDeps{
		Promotions: f.repo,
		Audit:      f.audit,
		Clock:      func() time.Time { return f.now },
		IDGen:      func() string { return "01TESTULID" },
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	f.svc = svc
	return f
}

func summerPromo() domain.Promotion {
	return domain.Promotion{
		ID:       "promo_1",
		Code:     "SUMMER10",
		Name:     "Summer Sale",
		Type:     domain.PromotionTypePercentage,
		Value:    10,
		Active:   true,
		StartsAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPromotionGetByCodeNormalizes(t *testing.T) {
	f := newPromotionFixture(t, summerPromo())

	promo, err := f.svc.GetByCode(context.Background(), "  summer10 ")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if promo.ID != "promo_1" {
		t.Fatalf("unexpected promotion %s", promo.ID)
	}
}

func TestPromotionGetByCodeUnknownAndMalformed(t *testing.T) {
	f := newPromotionFixture(t, summerPromo())

	// Unknown and malformed codes surface the same sentinel so callers
	// cannot probe the catalog.
	for _, code := range []string{"WINTER10", "??"} {
		_, err := f.svc.GetByCode(context.Background(), code)
		if !errors.Is(err, ErrPromotionInvalid) {
			t.Fatalf("code %q: expected ErrPromotionInvalid, got %v", code, err)
		}
	}
}

func TestPromotionCreate(t *testing.T) {
	f := newPromotionFixture(t)

	promo := summerPromo()
	promo.ID = ""
	promo.Code = "summer10"
	promo.UsageCount = 99
	promo.Usage = []domain.PromotionUsage{{UserID: "user-1"}}

	created, err := f.svc.Create(context.Background(), UpsertPromotionCommand{Promotion: promo, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "promo_01TESTULID" {
		t.Fatalf("unexpected id %s", created.ID)
	}
	if created.Code != "SUMMER10" {
		t.Fatalf("expected normalized code, got %s", created.Code)
	}
	// Redemption bookkeeping belongs to the usage path, never to admin input.
	if created.UsageCount != 0 || created.Usage != nil {
		t.Fatalf("expected zeroed usage, got count=%d usage=%v", created.UsageCount, created.Usage)
	}
	if len(f.audit.recorded) != 1 || f.audit.recorded[0].Action != "promotion.create" {
		t.Fatalf("expected create audit entry, got %+v", f.audit.recorded)
	}
}

func TestPromotionCreateDuplicateCode(t *testing.T) {
	f := newPromotionFixture(t, summerPromo())

	promo := summerPromo()
	promo.ID = ""
	_, err := f.svc.Create(context.Background(), UpsertPromotionCommand{Promotion: promo})
	if !errors.Is(err, ErrPromotionConflict) {
		t.Fatalf("expected ErrPromotionConflict, got %v", err)
	}
}

func TestPromotionCreateRejectsBadDefinition(t *testing.T) {
	f := newPromotionFixture(t)

	bad := summerPromo()
	bad.Value = 150
	_, err := f.svc.Create(context.Background(), UpsertPromotionCommand{Promotion: bad})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPromotionUpdatePreservesUsage(t *testing.T) {
	existing := summerPromo()
	existing.UsageCount = 4
	existing.Usage = []domain.PromotionUsage{{UserID: "user-1"}}
	f := newPromotionFixture(t, existing)

	updated := summerPromo()
	updated.Value = 15
	updated.UsageCount = 0
	updated.Usage = nil

	promo, err := f.svc.Update(context.Background(), UpsertPromotionCommand{Promotion: updated, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if promo.Value != 15 {
		t.Fatalf("expected updated value, got %d", promo.Value)
	}
	if promo.UsageCount != 4 || len(promo.Usage) != 1 {
		t.Fatalf("expected usage preserved, got count=%d usage=%v", promo.UsageCount, promo.Usage)
	}
}

func TestPromotionUpdateUnknownID(t *testing.T) {
	f := newPromotionFixture(t)

	promo := summerPromo()
	promo.ID = "promo_missing"
	_, err := f.svc.Update(context.Background(), UpsertPromotionCommand{Promotion: promo})
	if !errors.Is(err, ErrPromotionInvalid) {
		t.Fatalf("expected ErrPromotionInvalid, got %v", err)
	}
}

func TestPromotionDeactivateKeepsHistory(t *testing.T) {
	existing := summerPromo()
	existing.UsageCount = 7
	f := newPromotionFixture(t, existing)

	if err := f.svc.Deactivate(context.Background(), "promo_1", "admin-1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	stored := f.repo.promos["promo_1"]
	if stored.Active {
		t.Fatalf("expected promotion inactive")
	}
	if stored.UsageCount != 7 {
		t.Fatalf("expected usage history kept, got %d", stored.UsageCount)
	}
	if len(f.audit.recorded) != 1 || f.audit.recorded[0].Action != "promotion.deactivate" {
		t.Fatalf("expected deactivate audit entry, got %+v", f.audit.recorded)
	}
}

func TestPromotionRecordUsage(t *testing.T) {
	f := newPromotionFixture(t, summerPromo())

	if err := f.svc.RecordUsage(context.Background(), "promo_1", "user-1"); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	stored := f.repo.promos["promo_1"]
	if stored.UsageCount != 1 || len(stored.Usage) != 1 || stored.Usage[0].UserID != "user-1" {
		t.Fatalf("unexpected usage state: %+v", stored)
	}

	if err := f.svc.RecordUsage(context.Background(), "", "user-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPromotionListActiveOnly(t *testing.T) {
	inactive := summerPromo()
	inactive.ID = "promo_2"
	inactive.Code = "EXPIRED5"
	inactive.Active = false
	f := newPromotionFixture(t, summerPromo(), inactive)

	page, err := f.svc.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "promo_1" {
		t.Fatalf("expected only the active promotion, got %+v", page.Items)
	}
}
