package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/platform/textutil"
	"github.com/teleshop/bot/internal/repositories"
)

// Cart service errors.
var (
	ErrCartInvalidInput = errors.New("cart input invalid")
	// ErrCartNotAvailable covers inactive products and insufficient stock at
	// add-to-cart time.
	ErrCartNotAvailable = errors.New("product not available")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrCartEmpty        = errors.New("cart is empty")
	ErrCartNotActive    = errors.New("cart is not active")
	// ErrCartProductUnavailable is the conversion-time availability re-check
	// failure: products can go out of stock between add-to-cart and checkout.
	ErrCartProductUnavailable = errors.New("product unavailable at checkout")
	ErrCartUnavailable        = errors.New("cart storage unavailable")
)

const orderCounterID = "orders"

// CartServiceDeps wires the collaborators for NewCartService.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Products   repositories.ProductRepository
	Promotions repositories.PromotionRepository
	Orders     repositories.OrderRepository
	Counters   repositories.CounterRepository
	UnitOfWork repositories.UnitOfWork
	Engine     *PricingEngine
	Events     EventPublisher
	Notifier   NotificationDispatcher
	Clock      func() time.Time
	IDGen      func() string
	Logger     Logger
}

type cartService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	promotions repositories.PromotionRepository
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	unit       repositories.UnitOfWork
	engine     *PricingEngine
	events     EventPublisher
	notifier   NotificationDispatcher
	clock      func() time.Time
	idGen      func() string
	logger     Logger
}

// NewCartService validates dependencies and returns the cart aggregate service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service requires cart repository")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service requires product repository")
	}
	if deps.Engine == nil {
		return nil, errors.New("cart service requires pricing engine")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	return &cartService{
		carts:      deps.Carts,
		products:   deps.Products,
		promotions: deps.Promotions,
		orders:     deps.Orders,
		counters:   deps.Counters,
		unit:       unit,
		engine:     deps.Engine,
		events:     deps.Events,
		notifier:   deps.Notifier,
		clock:      func() time.Time { return clock().UTC() },
		idGen:      idGen,
		logger:     logger,
	}, nil
}

// GetOrCreate returns the user's active cart, lazily creating an empty one.
// A converted or abandoned cart is replaced by a fresh empty cart.
func (s *cartService) GetOrCreate(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.saveCart(ctx, s.emptyCart(uid))
		}
		return Cart{}, s.translateRepoError(err)
	}
	if cart.Status != domain.CartStatusActive {
		return s.saveCart(ctx, s.emptyCart(uid))
	}
	return cart, nil
}

// AddItem merges the product into an existing line or appends a new one, then
// recomputes the summary against current catalog prices.
func (s *cartService) AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if err := ValidateQuantity(cmd.Quantity); err != nil {
		return Cart{}, err
	}

	cart, err := s.GetOrCreate(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartNotAvailable, productID)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("%w: %s is inactive", ErrCartNotAvailable, product.Name)
	}

	now := s.clock()
	idx := indexOfItem(cart.Items, productID)
	requested := cmd.Quantity
	if idx >= 0 {
		requested += cart.Items[idx].Quantity
	}
	if product.Tracked() && requested > *product.Stock {
		return Cart{}, fmt.Errorf("%w: only %d of %s in stock", ErrCartNotAvailable, *product.Stock, product.Name)
	}

	answers := cleanAnswers(cmd.Answers)
	if idx >= 0 {
		cart.Items[idx].Quantity = requested
		if len(answers) > 0 {
			cart.Items[idx].Answers = answers
		}
		cart.Items[idx].UpdatedAt = now
	} else {
		cart.Items = append(cart.Items, CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			Category:  product.Category,
			Quantity:  cmd.Quantity,
			UnitPrice: product.UnitPrice,
			Answers:   answers,
			AddedAt:   now,
			UpdatedAt: now,
		})
	}

	if err := s.reprice(ctx, &cart); err != nil {
		return Cart{}, err
	}
	return s.saveCart(ctx, cart)
}

// UpdateQuantity sets the line quantity; a quantity of zero or less removes
// the line. The product must already be in the cart.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfItem(cart.Items, productID)
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}

	if cmd.Quantity <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		product, err := s.products.FindByID(ctx, productID)
		if err == nil && product.Tracked() && cmd.Quantity > *product.Stock {
			return Cart{}, fmt.Errorf("%w: only %d of %s in stock", ErrCartNotAvailable, *product.Stock, product.Name)
		}
		cart.Items[idx].Quantity = cmd.Quantity
		cart.Items[idx].UpdatedAt = s.clock()
	}

	if err := s.reprice(ctx, &cart); err != nil {
		return Cart{}, err
	}
	return s.saveCart(ctx, cart)
}

// RemoveItem deletes the line if present. Removing an absent line is a silent
// no-op rather than an error.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfItem(cart.Items, productID)
	if idx < 0 {
		return cart, nil
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	if err := s.reprice(ctx, &cart); err != nil {
		return Cart{}, err
	}
	return s.saveCart(ctx, cart)
}

// Clear empties the cart, drops any applied promotion and zeroes the summary.
func (s *cartService) Clear(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	cart.Items = []CartItem{}
	cart.Promotion = nil
	cart.Summary = CartSummary{}
	return s.saveCart(ctx, cart)
}

// ApplyPromotion validates the code against the cart and, when eligible,
// stores the promotion reference and recomputes the summary with its discount.
func (s *cartService) ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	code, err := NormalizePromoCode(cmd.Code)
	if err != nil {
		return Cart{}, fmt.Errorf("%w: %s", ErrPromotionInvalid, "that code does not look right")
	}
	if s.promotions == nil {
		return Cart{}, errors.New("cart service: promotion repository not configured")
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	promo, err := s.promotions.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: code %s not found", ErrPromotionInvalid, code)
		}
		return Cart{}, s.translateRepoError(err)
	}

	validation := s.engine.ValidatePromotion(promo, cart.Items, uid, s.clock())
	if !validation.Eligible {
		return Cart{}, promotionError(validation.Violations)
	}

	cart.Promotion = &domain.CartPromotion{
		PromotionID:    promo.ID,
		Code:           promo.Code,
		Type:           promo.Type,
		DiscountAmount: validation.Discount,
	}
	if err := s.reprice(ctx, &cart); err != nil {
		return Cart{}, err
	}

	s.logger(ctx, "cart.promotion.applied", map[string]any{
		"userId":   uid,
		"code":     promo.Code,
		"discount": cart.Summary.Discount,
	})
	return s.saveCart(ctx, cart)
}

// SetPaymentMethod records the chosen method and recomputes fees.
func (s *cartService) SetPaymentMethod(ctx context.Context, cmd SetPaymentMethodCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := ValidatePaymentMethod(cmd.Method); err != nil {
		return Cart{}, err
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	cart.PaymentMethod = cmd.Method
	if err := s.reprice(ctx, &cart); err != nil {
		return Cart{}, err
	}
	return s.saveCart(ctx, cart)
}

// ConvertToOrder snapshots the cart into a new pending order, records
// promotion usage, and marks the cart converted. The only irreversible cart
// transition.
func (s *cartService) ConvertToOrder(ctx context.Context, cmd ConvertToOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if s.orders == nil || s.counters == nil {
		return Order{}, errors.New("cart service: order repository and counters are required for conversion")
	}

	cart, err := s.activeCart(ctx, uid)
	if err != nil {
		return Order{}, err
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrCartEmpty
	}

	method := cmd.Method
	if method == "" {
		method = cart.PaymentMethod
	}
	if err := ValidatePaymentMethod(method); err != nil {
		return Order{}, err
	}
	cart.PaymentMethod = method

	// Availability re-check: products can go out of stock between
	// add-to-cart and checkout.
	for i, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return Order{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, item.Name)
			}
			return Order{}, s.translateRepoError(err)
		}
		if !product.Active {
			return Order{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, product.Name)
		}
		if product.Tracked() && item.Quantity > *product.Stock {
			return Order{}, fmt.Errorf("%w: only %d of %s left", ErrCartProductUnavailable, *product.Stock, product.Name)
		}
		// Freeze current catalog prices into the snapshot.
		cart.Items[i].UnitPrice = product.UnitPrice
		cart.Items[i].Name = product.Name
		cart.Items[i].Category = product.Category
	}
	cart.Summary = s.summarize(ctx, cart)

	now := s.clock()
	orderNumber, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:          "ord_" + s.idGen(),
		OrderNumber: orderNumber,
		UserID:      uid,
		ChatID:      cmd.ChatID,
		Status:      domain.OrderStatusPending,
		Items:       snapshotItems(cart.Items),
		Payment: domain.OrderPayment{
			Method:   method,
			Subtotal: cart.Summary.Subtotal,
			Discount: cart.Summary.Discount,
			Fees:     cart.Summary.Fees,
			Total:    cart.Summary.Total,
			Status:   domain.TransactionStatusPending,
		},
		Timeline: []TimelineEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Note:      "order created",
			ActorID:   uid,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cart.Promotion != nil {
		order.PromotionID = cart.Promotion.PromotionID
		order.PromotionCode = cart.Promotion.Code
	}

	err = s.unit.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, order); err != nil {
			return s.translateRepoError(err)
		}
		for _, item := range order.Items {
			product, err := s.products.FindByID(ctx, item.ProductID)
			if err == nil && product.Tracked() {
				if err := s.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
					return s.translateRepoError(err)
				}
			}
		}
		// Usage is consumed here, once conversion is certain, not at
		// apply-time.
		if cart.Promotion != nil && s.promotions != nil {
			usage := domain.PromotionUsage{UserID: uid, UsedAt: now}
			if err := s.promotions.RecordUsage(ctx, cart.Promotion.PromotionID, usage); err != nil {
				s.logger(ctx, "cart.promotion.usage_record_failed", map[string]any{
					"promotionId": cart.Promotion.PromotionID,
					"error":       err.Error(),
				})
			}
		}
		cart.Status = domain.CartStatusConverted
		cart.UpdatedAt = now
		if _, err := s.carts.Upsert(ctx, cart); err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if s.events != nil {
		_ = s.events.PublishOrderEvent(ctx, OrderEvent{
			Type:          OrderEventCreated,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        uid,
			CurrentStatus: order.Status,
			ActorID:       uid,
			OccurredAt:    now,
		})
	}
	if s.notifier != nil {
		s.notifier.OrderCreated(ctx, order)
	}

	s.logger(ctx, "cart.converted", map[string]any{
		"userId":      uid,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.Payment.Total,
	})
	return order, nil
}

// helpers --------------------------------------------------------------------

func (s *cartService) emptyCart(userID string) Cart {
	now := s.clock()
	return Cart{
		ID:        userID,
		UserID:    userID,
		Status:    domain.CartStatusActive,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) activeCart(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.emptyCart(userID), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	if cart.Status != domain.CartStatusActive {
		return Cart{}, fmt.Errorf("%w: status %s", ErrCartNotActive, cart.Status)
	}
	return cart, nil
}

func (s *cartService) saveCart(ctx context.Context, cart Cart) (Cart, error) {
	cart.UpdatedAt = s.clock()
	saved, err := s.carts.Upsert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// reprice re-reads the current catalog price for every line and recomputes
// the summary. Prices in the cart are never served stale.
func (s *cartService) reprice(ctx context.Context, cart *Cart) error {
	now := s.clock()
	for i, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return s.translateRepoError(err)
		}
		if product.UnitPrice != item.UnitPrice {
			cart.Items[i].UnitPrice = product.UnitPrice
			cart.Items[i].UpdatedAt = now
		}
		cart.Items[i].Name = product.Name
		cart.Items[i].Category = product.Category
	}
	for i, item := range cart.Items {
		cart.Items[i].FinalPrice = item.UnitPrice * item.Quantity
	}
	cart.Summary = s.summarize(ctx, *cart)
	if cart.Promotion != nil {
		cart.Promotion.DiscountAmount = cart.Summary.Discount
	}
	return nil
}

func (s *cartService) summarize(ctx context.Context, cart Cart) CartSummary {
	var promo *Promotion
	if cart.Promotion != nil && s.promotions != nil {
		if fetched, err := s.promotions.FindByID(ctx, cart.Promotion.PromotionID); err == nil {
			promo = &fetched
		}
	}
	if promo == nil && cart.Promotion != nil {
		// Fall back to the stored discount when the definition is not
		// reachable.
		subtotal := Subtotal(cart.Items)
		discount := cart.Promotion.DiscountAmount
		if discount > subtotal {
			discount = subtotal
		}
		fees := s.engine.Fees(cart.PaymentMethod, subtotal)
		return CartSummary{Subtotal: subtotal, Discount: discount, Fees: fees, Total: subtotal - discount + fees}
	}
	return s.engine.Summarize(cart.Items, promo, cart.PaymentMethod)
}

func (s *cartService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("TS-%04d-%06d", now.Year(), seq), nil
}

func (s *cartService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func indexOfItem(items []CartItem, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func snapshotItems(items []CartItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Category:  item.Category,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.UnitPrice * item.Quantity,
			Answers:   append([]CustomFieldAnswer(nil), item.Answers...),
		})
	}
	return out
}

func cleanAnswers(answers []CustomFieldAnswer) []CustomFieldAnswer {
	if len(answers) == 0 {
		return nil
	}
	out := make([]CustomFieldAnswer, 0, len(answers))
	for _, a := range answers {
		key := strings.TrimSpace(a.Key)
		if key == "" {
			continue
		}
		out = append(out, CustomFieldAnswer{
			Key:    key,
			Value:  textutil.Clean(a.Value),
			FileID: strings.TrimSpace(a.FileID),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
