package services

import (
	"testing"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

func engineItems() []CartItem {
	return []CartItem{
		{ProductID: "prod_coffee", Name: "Espresso Beans", Category: "coffee", Quantity: 2, UnitPrice: 1250},
		{ProductID: "prod_mug", Name: "Stone Mug", Category: "kitchen", Quantity: 1, UnitPrice: 1500},
	}
}

func TestSubtotal(t *testing.T) {
	if got := Subtotal(engineItems()); got != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", got)
	}
	if got := Subtotal(nil); got != 0 {
		t.Fatalf("expected empty subtotal 0, got %d", got)
	}
}

func TestCalculateDiscountPercentage(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{Type: domain.PromotionTypePercentage, Value: 10}

	if got := engine.CalculateDiscount(promo, engineItems()); got != 400 {
		t.Fatalf("expected discount 400, got %d", got)
	}

	// 15% of 1250 is 187.5 and rounds up.
	items := []CartItem{{ProductID: "p", Quantity: 1, UnitPrice: 1250}}
	promo.Value = 15
	if got := engine.CalculateDiscount(promo, items); got != 188 {
		t.Fatalf("expected half-up rounding to 188, got %d", got)
	}
}

func TestCalculateDiscountFixedClampsToSubtotal(t *testing.T) {
	engine := NewPricingEngine(nil)
	items := []CartItem{{ProductID: "p", Quantity: 1, UnitPrice: 60}}

	promo := Promotion{Type: domain.PromotionTypeFixed, Value: 15}
	if got := engine.CalculateDiscount(promo, items); got != 15 {
		t.Fatalf("expected discount 15, got %d", got)
	}

	promo.Value = 500
	if got := engine.CalculateDiscount(promo, items); got != 60 {
		t.Fatalf("expected discount clamped to 60, got %d", got)
	}
}

func TestCalculateDiscountProductSpecific(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{
		Type:             domain.PromotionTypeProductSpecific,
		Value:            20,
		EligibleProducts: []string{"prod_coffee"},
	}

	// 20% of the coffee line (2500) only.
	if got := engine.CalculateDiscount(promo, engineItems()); got != 500 {
		t.Fatalf("expected discount 500, got %d", got)
	}
}

func TestCalculateDiscountCategorySpecific(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{
		Type:               domain.PromotionTypeCategorySpecific,
		Value:              50,
		EligibleCategories: []string{"kitchen"},
	}

	if got := engine.CalculateDiscount(promo, engineItems()); got != 750 {
		t.Fatalf("expected discount 750, got %d", got)
	}
}

func TestCalculateDiscountBuyXGetY(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{
		Type: domain.PromotionTypeBuyXGetY,
		BuyXGetY: &domain.BuyXGetY{
			BuyQuantity:     2,
			GetQuantity:     1,
			DiscountPercent: 100,
		},
	}

	// 6 units at 10 form two buy-2-get-1 sets, so two units go free.
	items := []CartItem{{ProductID: "p", Quantity: 6, UnitPrice: 10}}
	if got := engine.CalculateDiscount(promo, items); got != 20 {
		t.Fatalf("expected discount 20, got %d", got)
	}

	// 5 units complete only one set.
	items[0].Quantity = 5
	if got := engine.CalculateDiscount(promo, items); got != 10 {
		t.Fatalf("expected discount 10, got %d", got)
	}

	promo.BuyXGetY = nil
	if got := engine.CalculateDiscount(promo, items); got != 0 {
		t.Fatalf("expected no discount without parameters, got %d", got)
	}
}

func TestCalculateDiscountMaxDiscountCap(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{Type: domain.PromotionTypePercentage, Value: 50, MaxDiscount: 300}

	if got := engine.CalculateDiscount(promo, engineItems()); got != 300 {
		t.Fatalf("expected discount capped at 300, got %d", got)
	}
}

func TestFeesPerMethod(t *testing.T) {
	engine := NewPricingEngine(map[PaymentMethod]FeeRule{
		domain.PaymentMethodPayPal:    {PercentBps: 290, Fixed: 30},
		domain.PaymentMethodCryptoBTC: {Fixed: 100},
	})

	// 2.9% of 10000 plus the fixed 30.
	if got := engine.Fees(domain.PaymentMethodPayPal, 10_000); got != 320 {
		t.Fatalf("expected paypal fee 320, got %d", got)
	}
	if got := engine.Fees(domain.PaymentMethodCryptoBTC, 10_000); got != 100 {
		t.Fatalf("expected btc fee 100, got %d", got)
	}
	if got := engine.Fees(domain.PaymentMethodCash, 10_000); got != 0 {
		t.Fatalf("expected no fee for unconfigured method, got %d", got)
	}
	if got := engine.Fees("", 10_000); got != 0 {
		t.Fatalf("expected no fee for empty method, got %d", got)
	}
}

func TestSummarize(t *testing.T) {
	engine := NewPricingEngine(map[PaymentMethod]FeeRule{
		domain.PaymentMethodPayPal: {PercentBps: 250},
	})
	promo := Promotion{Type: domain.PromotionTypePercentage, Value: 25}

	summary := engine.Summarize(engineItems(), &promo, domain.PaymentMethodPayPal)
	if summary.Subtotal != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", summary.Subtotal)
	}
	if summary.Discount != 1000 {
		t.Fatalf("expected discount 1000, got %d", summary.Discount)
	}
	if summary.Fees != 100 {
		t.Fatalf("expected fees 100, got %d", summary.Fees)
	}
	if summary.Total != 3100 {
		t.Fatalf("expected total 3100, got %d", summary.Total)
	}
}

func TestSummarizeFloorsAtZero(t *testing.T) {
	engine := NewPricingEngine(nil)
	promo := Promotion{Type: domain.PromotionTypeFixed, Value: 99_999}

	summary := engine.Summarize(engineItems(), &promo, "")
	if summary.Discount != 4000 {
		t.Fatalf("expected discount clamped to subtotal, got %d", summary.Discount)
	}
	if summary.Total != 0 {
		t.Fatalf("expected total 0, got %d", summary.Total)
	}
}

func TestValidatePromotionCollectsAllViolations(t *testing.T) {
	engine := NewPricingEngine(nil)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	promo := Promotion{
		Type:      domain.PromotionTypePercentage,
		Value:     10,
		Active:    false,
		StartsAt:  now.Add(24 * time.Hour),
		EndsAt:    now.Add(48 * time.Hour),
		MinAmount: 50_000,
	}

	result := engine.ValidatePromotion(promo, engineItems(), "user-1", now)
	if result.Eligible {
		t.Fatalf("expected ineligible promotion")
	}
	codes := make(map[string]bool, len(result.Violations))
	for _, v := range result.Violations {
		codes[v.Code] = true
	}
	for _, want := range []string{ViolationNotActive, ViolationNotStarted, ViolationBelowMinAmount} {
		if !codes[want] {
			t.Fatalf("expected violation %s, got %v", want, result.Violations)
		}
	}
	if result.Discount != 0 {
		t.Fatalf("expected no discount on ineligible promotion, got %d", result.Discount)
	}
}

func TestValidatePromotionCaps(t *testing.T) {
	engine := NewPricingEngine(nil)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	promo := Promotion{
		Type:           domain.PromotionTypePercentage,
		Value:          10,
		Active:         true,
		StartsAt:       now.Add(-time.Hour),
		EndsAt:         now.Add(time.Hour),
		MaxUses:        5,
		UsageCount:     5,
		MaxUsesPerUser: 1,
		Usage: []domain.PromotionUsage{
			{UserID: "user-1", UsedAt: now.Add(-time.Minute)},
		},
	}

	result := engine.ValidatePromotion(promo, engineItems(), "user-1", now)
	if result.Eligible {
		t.Fatalf("expected ineligible promotion")
	}
	codes := make(map[string]bool, len(result.Violations))
	for _, v := range result.Violations {
		codes[v.Code] = true
	}
	if !codes[ViolationGlobalCap] || !codes[ViolationPerUserCap] {
		t.Fatalf("expected cap violations, got %v", result.Violations)
	}

	// Another user under the caps is still blocked globally but not per-user.
	result = engine.ValidatePromotion(promo, engineItems(), "user-2", now)
	codes = make(map[string]bool, len(result.Violations))
	for _, v := range result.Violations {
		codes[v.Code] = true
	}
	if codes[ViolationPerUserCap] {
		t.Fatalf("unexpected per-user violation for fresh user: %v", result.Violations)
	}
}

func TestValidatePromotionEligibleComputesDiscount(t *testing.T) {
	engine := NewPricingEngine(nil)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	promo := Promotion{
		Type:     domain.PromotionTypePercentage,
		Value:    10,
		Active:   true,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}

	result := engine.ValidatePromotion(promo, engineItems(), "user-1", now)
	if !result.Eligible {
		t.Fatalf("expected eligible promotion, got %v", result.Violations)
	}
	if result.Discount != 400 {
		t.Fatalf("expected discount 400, got %d", result.Discount)
	}
}

func TestValidatePromotionCategoryRestriction(t *testing.T) {
	engine := NewPricingEngine(nil)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	promo := Promotion{
		Type:               domain.PromotionTypeCategorySpecific,
		Value:              10,
		Active:             true,
		StartsAt:           now.Add(-time.Hour),
		EndsAt:             now.Add(time.Hour),
		EligibleCategories: []string{"coffee"},
	}

	// The mug line falls outside the coffee category.
	result := engine.ValidatePromotion(promo, engineItems(), "user-1", now)
	if result.Eligible {
		t.Fatalf("expected mixed-category cart to be ineligible")
	}
	if result.Violations[0].Code != ViolationCategoryMismatch {
		t.Fatalf("expected category violation, got %v", result.Violations)
	}
}
