package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	domain "github.com/teleshop/bot/internal/domain"
)

// ErrValidation marks bad input shape or range. Always recoverable and safe
// to show to the user.
var ErrValidation = errors.New("validation failed")

var (
	emailPattern     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	promoCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
)

// ValidateEmail checks basic address shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return nil
}

// NormalizePromoCode upper-cases and trims a promotion code and checks its shape.
func NormalizePromoCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !promoCodePattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: promotion code must be 3-32 letters, digits, dash or underscore", ErrValidation)
	}
	return normalized, nil
}

// ValidateQuantity bounds a requested line quantity.
func ValidateQuantity(quantity int64) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if quantity > 999 {
		return fmt.Errorf("%w: quantity must not exceed 999", ErrValidation)
	}
	return nil
}

// ValidateAmount checks a monetary amount in minor units.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

// ValidatePaymentMethod rejects unknown payment methods.
func ValidatePaymentMethod(method PaymentMethod) error {
	switch method {
	case domain.PaymentMethodPayPal, domain.PaymentMethodCryptoBTC, domain.PaymentMethodCryptoETH,
		domain.PaymentMethodVoucher, domain.PaymentMethodCash:
		return nil
	}
	return fmt.Errorf("%w: unknown payment method %q", ErrValidation, string(method))
}

// ValidatePromotionDefinition checks the structural invariants of a promotion
// before it is stored.
func ValidatePromotionDefinition(promo Promotion) error {
	if _, err := NormalizePromoCode(promo.Code); err != nil {
		return err
	}
	switch promo.Type {
	case domain.PromotionTypePercentage, domain.PromotionTypeProductSpecific, domain.PromotionTypeCategorySpecific:
		if promo.Value <= 0 || promo.Value > 100 {
			return fmt.Errorf("%w: percent value must be between 1 and 100", ErrValidation)
		}
	case domain.PromotionTypeFixed:
		if promo.Value <= 0 {
			return fmt.Errorf("%w: fixed discount must be positive", ErrValidation)
		}
	case domain.PromotionTypeBuyXGetY:
		params := promo.BuyXGetY
		if params == nil {
			return fmt.Errorf("%w: buy_x_get_y promotions require their parameter block", ErrValidation)
		}
		if params.BuyQuantity < 1 || params.GetQuantity < 1 {
			return fmt.Errorf("%w: buy and get quantities must be at least 1", ErrValidation)
		}
		if params.DiscountPercent <= 0 || params.DiscountPercent > 100 {
			return fmt.Errorf("%w: discount percent must be between 1 and 100", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown promotion type %q", ErrValidation, string(promo.Type))
	}
	if !promo.StartsAt.Before(promo.EndsAt) {
		return fmt.Errorf("%w: promotion start must precede its end", ErrValidation)
	}
	if promo.MinAmount < 0 || promo.MaxAmount < 0 || promo.MaxDiscount < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	if promo.MinAmount > 0 && promo.MaxAmount > 0 && promo.MinAmount > promo.MaxAmount {
		return fmt.Errorf("%w: minimum amount exceeds maximum amount", ErrValidation)
	}
	return nil
}
