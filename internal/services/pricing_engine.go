package services

import (
	"fmt"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

// FeeRule describes the surcharge a payment method adds on top of the
// discounted subtotal. PercentBps is basis points (125 = 1.25%).
type FeeRule struct {
	PercentBps int64
	Fixed      int64
}

// PricingEngine computes cart totals and promotional discounts. It holds no
// mutable state; fee rules come from configuration at construction time.
type PricingEngine struct {
	fees map[PaymentMethod]FeeRule
}

// NewPricingEngine constructs an engine with the given per-method fee rules.
func NewPricingEngine(fees map[PaymentMethod]FeeRule) *PricingEngine {
	rules := make(map[PaymentMethod]FeeRule, len(fees))
	for method, rule := range fees {
		rules[method] = rule
	}
	return &PricingEngine{fees: rules}
}

// Subtotal sums unit price times quantity over every line.
func Subtotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * item.Quantity
	}
	return total
}

// Fees applies the method's fee rule to the given base amount. Unknown or
// empty methods carry no fee.
func (e *PricingEngine) Fees(method PaymentMethod, base int64) int64 {
	if e == nil || method == "" {
		return 0
	}
	rule, ok := e.fees[method]
	if !ok {
		return 0
	}
	fee := rule.Fixed
	if rule.PercentBps > 0 {
		fee += domain.RoundHalfUpDiv(base*rule.PercentBps, 10_000)
	}
	return fee
}

// Summarize recomputes the cart summary: the discount is floored at zero and
// clamped to the subtotal, fees apply after the discount, and the total never
// goes negative.
func (e *PricingEngine) Summarize(items []CartItem, promotion *Promotion, method PaymentMethod) CartSummary {
	subtotal := Subtotal(items)

	var discount int64
	if promotion != nil {
		discount = e.CalculateDiscount(*promotion, items)
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	discounted := subtotal - discount
	fees := e.Fees(method, subtotal)

	return CartSummary{
		Subtotal: subtotal,
		Discount: discount,
		Fees:     fees,
		Total:    discounted + fees,
	}
}

// CalculateDiscount evaluates the promotion rule against the cart lines.
// Results are in minor units with half-up rounding on the cents boundary and
// are capped at the promotion's max discount when that cap is positive.
func (e *PricingEngine) CalculateDiscount(promo Promotion, items []CartItem) int64 {
	subtotal := Subtotal(items)

	var discount int64
	switch promo.Type {
	case domain.PromotionTypePercentage:
		discount = domain.PercentOf(subtotal, promo.Value)

	case domain.PromotionTypeFixed:
		discount = promo.Value
		if discount > subtotal {
			discount = subtotal
		}

	case domain.PromotionTypeProductSpecific:
		eligible := stringSet(promo.EligibleProducts)
		for _, item := range items {
			if _, ok := eligible[item.ProductID]; !ok {
				continue
			}
			discount += domain.PercentOf(item.UnitPrice*item.Quantity, promo.Value)
		}

	case domain.PromotionTypeCategorySpecific:
		eligible := stringSet(promo.EligibleCategories)
		for _, item := range items {
			if _, ok := eligible[item.Category]; !ok {
				continue
			}
			discount += domain.PercentOf(item.UnitPrice*item.Quantity, promo.Value)
		}

	case domain.PromotionTypeBuyXGetY:
		params := promo.BuyXGetY
		if params == nil || params.BuyQuantity+params.GetQuantity <= 0 {
			return 0
		}
		eligible := stringSet(promo.EligibleProducts)
		for _, item := range items {
			if len(eligible) > 0 {
				if _, ok := eligible[item.ProductID]; !ok {
					continue
				}
			}
			sets := item.Quantity / (params.BuyQuantity + params.GetQuantity)
			discountedQty := sets * params.GetQuantity
			discount += domain.RoundHalfUpDiv(item.UnitPrice*discountedQty*params.DiscountPercent, 100)
		}

	default:
		return 0
	}

	if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
		discount = promo.MaxDiscount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Promotion validation violation codes.
const (
	ViolationNotActive        = "not_active"
	ViolationNotStarted       = "not_started"
	ViolationExpired          = "expired"
	ViolationGlobalCap        = "global_cap_exceeded"
	ViolationPerUserCap       = "per_user_cap_exceeded"
	ViolationBelowMinAmount   = "below_min_amount"
	ViolationAboveMaxAmount   = "above_max_amount"
	ViolationExcludedProduct  = "excluded_product"
	ViolationCategoryMismatch = "category_mismatch"
)

// ValidatePromotion checks every eligibility rule and collects all violations
// instead of stopping at the first. The discount in the result is computed
// only when the promotion is eligible.
func (e *PricingEngine) ValidatePromotion(promo Promotion, items []CartItem, userID string, now time.Time) PromotionValidation {
	now = now.UTC()
	subtotal := Subtotal(items)
	var violations []PromotionViolation

	add := func(code, message string) {
		violations = append(violations, PromotionViolation{Code: code, Message: message})
	}

	if !promo.Active {
		add(ViolationNotActive, "this promotion is no longer active")
	}
	if now.Before(promo.StartsAt) {
		add(ViolationNotStarted, fmt.Sprintf("this promotion starts on %s", promo.StartsAt.Format("2006-01-02")))
	}
	if !now.Before(promo.EndsAt) {
		add(ViolationExpired, "this promotion has expired")
	}
	if promo.MaxUses > 0 && promo.UsageCount >= promo.MaxUses {
		add(ViolationGlobalCap, "this promotion has reached its redemption limit")
	}
	if promo.MaxUsesPerUser > 0 && promo.UserUses(userID) >= promo.MaxUsesPerUser {
		add(ViolationPerUserCap, "you have already used this promotion the maximum number of times")
	}
	if promo.MinAmount > 0 && subtotal < promo.MinAmount {
		add(ViolationBelowMinAmount, fmt.Sprintf("minimum purchase is %d", promo.MinAmount))
	}
	if promo.MaxAmount > 0 && subtotal > promo.MaxAmount {
		add(ViolationAboveMaxAmount, fmt.Sprintf("maximum purchase for this promotion is %d", promo.MaxAmount))
	}

	if len(promo.ExcludedProducts) > 0 {
		excluded := stringSet(promo.ExcludedProducts)
		for _, item := range items {
			if _, ok := excluded[item.ProductID]; ok {
				add(ViolationExcludedProduct, fmt.Sprintf("%s is not eligible for this promotion", item.Name))
				break
			}
		}
	}

	// When categories are restricted, every line must match, not just some.
	if len(promo.EligibleCategories) > 0 {
		eligible := stringSet(promo.EligibleCategories)
		for _, item := range items {
			if _, ok := eligible[item.Category]; !ok {
				add(ViolationCategoryMismatch, fmt.Sprintf("%s is outside the promotion categories", item.Name))
				break
			}
		}
	}

	result := PromotionValidation{
		Eligible:   len(violations) == 0,
		Violations: violations,
	}
	if result.Eligible {
		result.Discount = e.CalculateDiscount(promo, items)
	}
	return result
}

func stringSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
