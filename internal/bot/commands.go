package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

const (
	shopPageSize   = 8
	ordersPageSize = 5
)

func (r *Router) cmdStart(ctx context.Context, msg *tgbotapi.Message) error {
	userID := strconv.FormatInt(msg.From.ID, 10)
	now := r.clock().UTC()

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			return fmt.Errorf("load user: %w", err)
		}
		user = domain.User{ID: userID, CreatedAt: now}
	}
	user.ChatID = msg.Chat.ID
	user.Username = msg.From.UserName
	user.FirstName = msg.From.FirstName
	user.UpdatedAt = now
	if _, err := r.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	name := html.EscapeString(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	r.sendKeyboard(ctx, msg.Chat.ID,
		fmt.Sprintf("Hi %s! 👋 Welcome to the shop.\n\nBrowse the catalog, fill your cart and check out right here in the chat.", name),
		startKeyboard())
	return nil
}

func (r *Router) cmdShop(ctx context.Context, chatID int64, category string) error {
	page, err := r.products.List(ctx, repositories.ProductListFilter{
		Category:   category,
		ActiveOnly: true,
		Pagination: domain.Pagination{PageSize: shopPageSize},
	})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(page.Items) == 0 {
		r.send(ctx, chatID, "No products available right now. Check back soon!")
		return nil
	}
	r.sendKeyboard(ctx, chatID, productListText(page.Items, r.currency), productKeyboard(page.Items))
	return nil
}

func (r *Router) cmdCart(ctx context.Context, chatID int64, userID string) error {
	cart, err := r.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		r.send(ctx, chatID, "Your cart is empty. Browse /shop to add something.")
		return nil
	}
	r.sendKeyboard(ctx, chatID, cartText(cart, r.currency), cartKeyboard(cart))
	return nil
}

func (r *Router) cmdPromo(ctx context.Context, chatID int64, userID, code string) error {
	if code == "" {
		r.send(ctx, chatID, "Send the code together with the command, e.g. /promo SPRING20.")
		return nil
	}
	cart, err := r.carts.ApplyPromotion(ctx, services.ApplyPromotionCommand{UserID: userID, Code: code})
	if err != nil {
		return err
	}
	discount := int64(0)
	if cart.Promotion != nil {
		discount = cart.Promotion.DiscountAmount
	}
	r.sendKeyboard(ctx, chatID,
		fmt.Sprintf("✅ Promo <b>%s</b> applied, you save %s.\n\n%s",
			html.EscapeString(code), formatAmount(discount, r.currency), cartText(cart, r.currency)),
		cartKeyboard(cart))
	return nil
}

func (r *Router) cmdCheckout(ctx context.Context, chatID int64, userID string) error {
	cart, err := r.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return services.ErrCartEmpty
	}
	r.sendKeyboard(ctx, chatID,
		fmt.Sprintf("%s\nHow would you like to pay?", cartText(cart, r.currency)),
		methodKeyboard())
	return nil
}

func (r *Router) cmdOrders(ctx context.Context, chatID int64, userID string) error {
	page, err := r.orders.List(ctx, services.ListOrdersCommand{UserID: userID, PageSize: ordersPageSize})
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		r.send(ctx, chatID, "You have no orders yet.")
		return nil
	}
	r.sendKeyboard(ctx, chatID, orderListText(page.Items, r.currency), orderListKeyboard(page.Items))
	return nil
}

func (r *Router) cmdCancel(ctx context.Context, chatID int64, userID, orderID string) error {
	if orderID == "" {
		r.send(ctx, chatID, "Send the order id together with the command, e.g. /cancel ord_123.")
		return nil
	}
	return r.cbCancelOrder(ctx, chatID, userID, orderID)
}

// cmdPending lists orders awaiting action. Admin only.
func (r *Router) cmdPending(ctx context.Context, chatID int64, userID string) error {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil || !user.Admin {
		r.send(ctx, chatID, "Unknown command. Send /help for the list of commands.")
		return nil
	}
	page, err := r.orders.List(ctx, services.ListOrdersCommand{
		Status:   []domain.OrderStatus{domain.OrderStatusPending},
		PageSize: ordersPageSize,
	})
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		r.send(ctx, chatID, "No pending orders. 🎉")
		return nil
	}
	r.send(ctx, chatID, orderListText(page.Items, r.currency))
	return nil
}

// Callback handlers ----------------------------------------------------------

func (r *Router) cbAddToCart(ctx context.Context, chatID int64, userID, productID string) error {
	cart, err := r.carts.AddItem(ctx, services.AddItemCommand{
		UserID:    userID,
		ProductID: productID,
		Quantity:  1,
	})
	if err != nil {
		return err
	}
	r.sendKeyboard(ctx, chatID, "Added to your cart. 🛒\n\n"+cartText(cart, r.currency), cartKeyboard(cart))
	return nil
}

func (r *Router) cbAdjustQuantity(ctx context.Context, chatID int64, userID, productID string, delta int64) error {
	cart, err := r.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	var current int64
	for _, item := range cart.Items {
		if item.ProductID == productID {
			current = item.Quantity
			break
		}
	}
	target := current + delta
	if target <= 0 {
		return r.cbRemoveItem(ctx, chatID, userID, productID)
	}
	cart, err = r.carts.UpdateQuantity(ctx, services.UpdateQuantityCommand{
		UserID:    userID,
		ProductID: productID,
		Quantity:  target,
	})
	if err != nil {
		return err
	}
	r.sendKeyboard(ctx, chatID, cartText(cart, r.currency), cartKeyboard(cart))
	return nil
}

func (r *Router) cbRemoveItem(ctx context.Context, chatID int64, userID, productID string) error {
	cart, err := r.carts.RemoveItem(ctx, services.RemoveItemCommand{UserID: userID, ProductID: productID})
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		r.send(ctx, chatID, "Your cart is empty now.")
		return nil
	}
	r.sendKeyboard(ctx, chatID, cartText(cart, r.currency), cartKeyboard(cart))
	return nil
}

func (r *Router) cbClearCart(ctx context.Context, chatID int64, userID string) error {
	if _, err := r.carts.Clear(ctx, userID); err != nil {
		return err
	}
	r.send(ctx, chatID, "Your cart has been cleared.")
	return nil
}

func (r *Router) cbSelectMethod(ctx context.Context, chatID int64, userID, method string) error {
	cart, err := r.carts.SetPaymentMethod(ctx, services.SetPaymentMethodCommand{
		UserID: userID,
		Method: domain.PaymentMethod(method),
	})
	if err != nil {
		return err
	}
	r.sendKeyboard(ctx, chatID,
		fmt.Sprintf("%s\nPaying with <b>%s</b>. Ready to place the order?",
			cartText(cart, r.currency), methodLabel(cart.PaymentMethod)),
		confirmKeyboard())
	return nil
}

func (r *Router) cbConfirmOrder(ctx context.Context, chatID int64, userID string) error {
	cart, err := r.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if cart.PaymentMethod == "" {
		r.sendKeyboard(ctx, chatID, "Pick a payment method first.", methodKeyboard())
		return nil
	}

	order, err := r.carts.ConvertToOrder(ctx, services.ConvertToOrderCommand{
		UserID: userID,
		ChatID: chatID,
		Method: cart.PaymentMethod,
	})
	if err != nil {
		return err
	}

	instructions, err := r.payments.InitializePayment(ctx, services.InitializePaymentCommand{
		OrderID: order.ID,
		Method:  order.Payment.Method,
		ActorID: userID,
	})
	if err != nil {
		return err
	}
	r.sendKeyboard(ctx, chatID,
		paymentInstructionsText(order, instructions, r.currency),
		paymentKeyboard(instructions.Transaction.ID))
	return nil
}

func (r *Router) cbCheckPayment(ctx context.Context, chatID int64, paymentID string) error {
	result, err := r.payments.CheckStatus(ctx, paymentID)
	if err != nil {
		return err
	}
	text := paymentStatusText(result)
	if result.Status == domain.TransactionStatusPending {
		r.sendKeyboard(ctx, chatID, text, paymentKeyboard(paymentID))
		return nil
	}
	r.send(ctx, chatID, text)
	return nil
}

func (r *Router) cbCancelOrder(ctx context.Context, chatID int64, userID, orderID string) error {
	order, err := r.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: userID,
		Reason:  "cancelled by customer",
	})
	if err != nil {
		return err
	}
	r.send(ctx, chatID, fmt.Sprintf("Order <b>%s</b> has been cancelled.", html.EscapeString(order.OrderNumber)))
	return nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
