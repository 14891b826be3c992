package domain

import "time"

// Monetary amounts are int64 minor units (cents) in the shop currency.

// CartStatus enumerates the lifecycle states of a cart.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusConverted CartStatus = "converted"
)

// OrderStatus enumerates the order state machine states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodPayPal    PaymentMethod = "paypal"
	PaymentMethodCryptoBTC PaymentMethod = "crypto_btc"
	PaymentMethodCryptoETH PaymentMethod = "crypto_eth"
	PaymentMethodVoucher   PaymentMethod = "voucher"
	PaymentMethodCash      PaymentMethod = "cash"
)

// TransactionStatus enumerates payment attempt states.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusPendingValidation TransactionStatus = "pending_validation"
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusExpired           TransactionStatus = "expired"
	TransactionStatusRefunded          TransactionStatus = "refunded"
)

// VerificationState tracks human review of manual payments.
type VerificationState string

const (
	VerificationPending  VerificationState = "pending"
	VerificationVerified VerificationState = "verified"
	VerificationRejected VerificationState = "rejected"
)

// PromotionType enumerates discount rule variants.
type PromotionType string

const (
	PromotionTypePercentage       PromotionType = "percentage"
	PromotionTypeFixed            PromotionType = "fixed"
	PromotionTypeProductSpecific  PromotionType = "product_specific"
	PromotionTypeCategorySpecific PromotionType = "category_specific"
	PromotionTypeBuyXGetY         PromotionType = "buy_x_get_y"
)

// CustomFieldSpec describes an answer a product collects at add-to-cart time.
type CustomFieldSpec struct {
	Key      string `firestore:"key" json:"key"`
	Label    string `firestore:"label" json:"label"`
	Kind     string `firestore:"kind" json:"kind"` // "text" or "file"
	Required bool   `firestore:"required" json:"required"`
}

// Product is a read-only catalog entry.
type Product struct {
	ID           string            `firestore:"id" json:"id"`
	Name         string            `firestore:"name" json:"name"`
	Category     string            `firestore:"category" json:"category"`
	Description  string            `firestore:"description,omitempty" json:"description,omitempty"`
	UnitPrice    int64             `firestore:"unitPrice" json:"unitPrice"`
	Active       bool              `firestore:"active" json:"active"`
	Stock        *int64            `firestore:"stock,omitempty" json:"stock,omitempty"` // nil = unlimited
	CustomFields []CustomFieldSpec `firestore:"customFields,omitempty" json:"customFields,omitempty"`
	UpdatedAt    time.Time         `firestore:"updatedAt" json:"updatedAt"`
}

// Tracked reports whether stock is tracked for the product.
func (p Product) Tracked() bool { return p.Stock != nil }

// CustomFieldAnswer is a buyer-supplied answer captured on a cart line.
type CustomFieldAnswer struct {
	Key    string `firestore:"key" json:"key"`
	Value  string `firestore:"value,omitempty" json:"value,omitempty"`
	FileID string `firestore:"fileId,omitempty" json:"fileId,omitempty"`
}

// CartItem is one purchasable line in a cart.
//
// FinalPrice is UnitPrice multiplied by Quantity before any cart-level
// promotion is applied.
type CartItem struct {
	ProductID  string              `firestore:"productId" json:"productId"`
	Name       string              `firestore:"name" json:"name"`
	Category   string              `firestore:"category,omitempty" json:"category,omitempty"`
	Quantity   int64               `firestore:"quantity" json:"quantity"`
	UnitPrice  int64               `firestore:"unitPrice" json:"unitPrice"`
	FinalPrice int64               `firestore:"finalPrice" json:"finalPrice"`
	Answers    []CustomFieldAnswer `firestore:"answers,omitempty" json:"answers,omitempty"`
	AddedAt    time.Time           `firestore:"addedAt" json:"addedAt"`
	UpdatedAt  time.Time           `firestore:"updatedAt" json:"updatedAt"`
}

// CartSummary holds the recomputed totals for a cart.
type CartSummary struct {
	Subtotal int64 `firestore:"subtotal" json:"subtotal"`
	Discount int64 `firestore:"discount" json:"discount"`
	Fees     int64 `firestore:"fees" json:"fees"`
	Total    int64 `firestore:"total" json:"total"`
}

// CartPromotion is the reference a cart keeps to an applied promotion.
type CartPromotion struct {
	PromotionID    string        `firestore:"promotionId" json:"promotionId"`
	Code           string        `firestore:"code" json:"code"`
	Type           PromotionType `firestore:"type" json:"type"`
	DiscountAmount int64         `firestore:"discountAmount" json:"discountAmount"`
}

// Cart is the per-user mutable collection of pending purchase lines.
// Exactly one active cart exists per user; the document id is the user id.
type Cart struct {
	ID            string         `firestore:"id" json:"id"`
	UserID        string         `firestore:"userId" json:"userId"`
	Status        CartStatus     `firestore:"status" json:"status"`
	Items         []CartItem     `firestore:"items" json:"items"`
	Promotion     *CartPromotion `firestore:"promotion,omitempty" json:"promotion,omitempty"`
	PaymentMethod PaymentMethod  `firestore:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Summary       CartSummary    `firestore:"summary" json:"summary"`
	CreatedAt     time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt" json:"updatedAt"`
}

// ItemCount returns the total quantity across all lines.
func (c Cart) ItemCount() int64 {
	var n int64
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// OrderItem is a cart line frozen into an order at conversion time.
type OrderItem struct {
	ProductID string              `firestore:"productId" json:"productId"`
	Name      string              `firestore:"name" json:"name"`
	Category  string              `firestore:"category,omitempty" json:"category,omitempty"`
	Quantity  int64               `firestore:"quantity" json:"quantity"`
	UnitPrice int64               `firestore:"unitPrice" json:"unitPrice"`
	Total     int64               `firestore:"total" json:"total"`
	Answers   []CustomFieldAnswer `firestore:"answers,omitempty" json:"answers,omitempty"`
}

// OrderPayment summarises how an order is to be paid.
type OrderPayment struct {
	Method   PaymentMethod     `firestore:"method" json:"method"`
	Subtotal int64             `firestore:"subtotal" json:"subtotal"`
	Discount int64             `firestore:"discount" json:"discount"`
	Fees     int64             `firestore:"fees" json:"fees"`
	Total    int64             `firestore:"total" json:"total"`
	Status   TransactionStatus `firestore:"status" json:"status"`
}

// TimelineEntry records one status change on an order.
type TimelineEntry struct {
	Status    OrderStatus `firestore:"status" json:"status"`
	Timestamp time.Time   `firestore:"timestamp" json:"timestamp"`
	Note      string      `firestore:"note,omitempty" json:"note,omitempty"`
	ActorID   string      `firestore:"actorId,omitempty" json:"actorId,omitempty"`
}

// Order is the immutable-once-confirmed snapshot of a cart plus payment and
// status tracking. Items and frozen prices never change once the order leaves
// pending.
type Order struct {
	ID            string          `firestore:"id" json:"id"`
	OrderNumber   string          `firestore:"orderNumber" json:"orderNumber"`
	UserID        string          `firestore:"userId" json:"userId"`
	ChatID        int64           `firestore:"chatId,omitempty" json:"chatId,omitempty"`
	Status        OrderStatus     `firestore:"status" json:"status"`
	Items         []OrderItem     `firestore:"items" json:"items"`
	Payment       OrderPayment    `firestore:"payment" json:"payment"`
	PromotionID   string          `firestore:"promotionId,omitempty" json:"promotionId,omitempty"`
	PromotionCode string          `firestore:"promotionCode,omitempty" json:"promotionCode,omitempty"`
	Timeline      []TimelineEntry `firestore:"timeline" json:"timeline"`
	Metadata      map[string]any  `firestore:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt     time.Time       `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

// Terminal reports whether the order status accepts no further transition.
func (o Order) Terminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRejected, OrderStatusRefunded:
		return true
	}
	return false
}

// TransactionAmount breaks down a payment attempt's amount.
type TransactionAmount struct {
	Subtotal int64 `firestore:"subtotal" json:"subtotal"`
	Discount int64 `firestore:"discount" json:"discount"`
	Fees     int64 `firestore:"fees" json:"fees"`
	Total    int64 `firestore:"total" json:"total"`
}

// Verification records human review of a manual payment.
type Verification struct {
	State      VerificationState `firestore:"state" json:"state"`
	VerifierID string            `firestore:"verifierId,omitempty" json:"verifierId,omitempty"`
	VerifiedAt *time.Time        `firestore:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	ProofRef   string            `firestore:"proofRef,omitempty" json:"proofRef,omitempty"`
}

// Refund is the in-place refund record on a transaction. A refund mutates the
// owning transaction; it is never a separate entity.
type Refund struct {
	Amount     int64     `firestore:"amount" json:"amount"`
	Reason     string    `firestore:"reason,omitempty" json:"reason,omitempty"`
	AdminID    string    `firestore:"adminId" json:"adminId"`
	RefundedAt time.Time `firestore:"refundedAt" json:"refundedAt"`
}

// Transaction is a single payment attempt on an order. Its status is tracked
// independently of the order's own payment summary.
type Transaction struct {
	ID           string            `firestore:"id" json:"id"`
	OrderID      string            `firestore:"orderId" json:"orderId"`
	UserID       string            `firestore:"userId" json:"userId"`
	Method       PaymentMethod     `firestore:"method" json:"method"`
	Provider     string            `firestore:"provider,omitempty" json:"provider,omitempty"`
	ProviderRef  string            `firestore:"providerRef,omitempty" json:"providerRef,omitempty"`
	Address      string            `firestore:"address,omitempty" json:"address,omitempty"`
	Amount       TransactionAmount `firestore:"amount" json:"amount"`
	Status       TransactionStatus `firestore:"status" json:"status"`
	Verification Verification      `firestore:"verification" json:"verification"`
	RiskScore    float64           `firestore:"riskScore,omitempty" json:"riskScore,omitempty"`
	Refund       *Refund           `firestore:"refund,omitempty" json:"refund,omitempty"`
	ExpiresAt    time.Time         `firestore:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time         `firestore:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time         `firestore:"updatedAt" json:"updatedAt"`
}

// BuyXGetY carries the parameters specific to buy_x_get_y promotions.
type BuyXGetY struct {
	BuyQuantity     int64 `firestore:"buyQuantity" json:"buyQuantity"`
	GetQuantity     int64 `firestore:"getQuantity" json:"getQuantity"`
	DiscountPercent int64 `firestore:"discountPercent" json:"discountPercent"`
}

// PromotionUsage is one append-only redemption record.
type PromotionUsage struct {
	UserID string    `firestore:"userId" json:"userId"`
	UsedAt time.Time `firestore:"usedAt" json:"usedAt"`
}

// Promotion is a named, rule-based discount applicable to a cart.
//
// Value is a percent for percentage-style types and minor units for fixed.
// Zero caps and bounds mean unset.
type Promotion struct {
	ID                 string           `firestore:"id" json:"id"`
	Code               string           `firestore:"code" json:"code"`
	Name               string           `firestore:"name" json:"name"`
	Type               PromotionType    `firestore:"type" json:"type"`
	Value              int64            `firestore:"value" json:"value"`
	Active             bool             `firestore:"active" json:"active"`
	StartsAt           time.Time        `firestore:"startsAt" json:"startsAt"`
	EndsAt             time.Time        `firestore:"endsAt" json:"endsAt"`
	MaxUses            int64            `firestore:"maxUses,omitempty" json:"maxUses,omitempty"`
	MaxUsesPerUser     int64            `firestore:"maxUsesPerUser,omitempty" json:"maxUsesPerUser,omitempty"`
	MinAmount          int64            `firestore:"minAmount,omitempty" json:"minAmount,omitempty"`
	MaxAmount          int64            `firestore:"maxAmount,omitempty" json:"maxAmount,omitempty"`
	MaxDiscount        int64            `firestore:"maxDiscount,omitempty" json:"maxDiscount,omitempty"`
	EligibleProducts   []string         `firestore:"eligibleProducts,omitempty" json:"eligibleProducts,omitempty"`
	ExcludedProducts   []string         `firestore:"excludedProducts,omitempty" json:"excludedProducts,omitempty"`
	EligibleCategories []string         `firestore:"eligibleCategories,omitempty" json:"eligibleCategories,omitempty"`
	BuyXGetY           *BuyXGetY        `firestore:"buyXGetY,omitempty" json:"buyXGetY,omitempty"`
	UsageCount         int64            `firestore:"usageCount" json:"usageCount"`
	Usage              []PromotionUsage `firestore:"usage,omitempty" json:"usage,omitempty"`
	CreatedAt          time.Time        `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time        `firestore:"updatedAt" json:"updatedAt"`
}

// UserUses counts the redemptions recorded for one user.
func (p Promotion) UserUses(userID string) int64 {
	var n int64
	for _, u := range p.Usage {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

// User is a shop customer or admin, keyed by Telegram user id.
type User struct {
	ID        string    `firestore:"id" json:"id"`
	ChatID    int64     `firestore:"chatId" json:"chatId"`
	Username  string    `firestore:"username,omitempty" json:"username,omitempty"`
	FirstName string    `firestore:"firstName,omitempty" json:"firstName,omitempty"`
	Email     string    `firestore:"email,omitempty" json:"email,omitempty"`
	Balance   int64     `firestore:"balance" json:"balance"`
	Admin     bool      `firestore:"admin,omitempty" json:"admin,omitempty"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// CursorPage is a page of results with an opaque continuation token.
type CursorPage[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// Pagination carries cursor paging inputs for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery bounds a list query on an ordered field.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
