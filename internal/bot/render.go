package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/notifications"
	"github.com/teleshop/bot/internal/services"
)

func formatAmount(minor int64, currency string) string {
	return notifications.FormatAmount(minor, currency)
}

func helpText() string {
	return strings.Join([]string{
		"Here's what I can do:",
		"",
		"/shop — browse the catalog",
		"/cart — view and edit your cart",
		"/promo CODE — apply a promo code",
		"/checkout — place your order",
		"/orders — your recent orders",
		"/cancel ORDER — cancel a pending order",
	}, "\n")
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍 Browse shop", "shop:browse"),
		),
	)
}

func productListText(products []domain.Product, currency string) string {
	var b strings.Builder
	b.WriteString("🛍 <b>Catalog</b>\n\n")
	for _, p := range products {
		fmt.Fprintf(&b, "<b>%s</b> — %s\n", html.EscapeString(p.Name), formatAmount(p.UnitPrice, currency))
		if p.Description != "" {
			fmt.Fprintf(&b, "%s\n", html.EscapeString(p.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString("Tap a button to add an item to your cart.")
	return b.String()
}

func productKeyboard(products []domain.Product) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products))
	for _, p := range products {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ "+p.Name, "cart:add:"+p.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cartText(cart domain.Cart, currency string) string {
	var b strings.Builder
	b.WriteString("🛒 <b>Your cart</b>\n\n")
	for _, item := range cart.Items {
		fmt.Fprintf(&b, "%s × %d — %s\n",
			html.EscapeString(item.Name), item.Quantity, formatAmount(item.FinalPrice, currency))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", formatAmount(cart.Summary.Subtotal, currency))
	if cart.Summary.Discount > 0 {
		code := ""
		if cart.Promotion != nil {
			code = " (" + html.EscapeString(cart.Promotion.Code) + ")"
		}
		fmt.Fprintf(&b, "Discount%s: -%s\n", code, formatAmount(cart.Summary.Discount, currency))
	}
	if cart.Summary.Fees > 0 {
		fmt.Fprintf(&b, "Fees: %s\n", formatAmount(cart.Summary.Fees, currency))
	}
	fmt.Fprintf(&b, "<b>Total: %s</b>\n", formatAmount(cart.Summary.Total, currency))
	return b.String()
}

func cartKeyboard(cart domain.Cart) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cart.Items)+1)
	for _, item := range cart.Items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖", fmt.Sprintf("cart:qty:%s:-1", item.ProductID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d × %s", item.Quantity, item.Name), "cart:noop:"+item.ProductID),
			tgbotapi.NewInlineKeyboardButtonData("➕", fmt.Sprintf("cart:qty:%s:1", item.ProductID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", "cart:rm:"+item.ProductID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💳 Checkout", "cart:checkout:go"),
		tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", "cart:clear"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var methodLabels = map[domain.PaymentMethod]string{
	domain.PaymentMethodPayPal:    "PayPal / card",
	domain.PaymentMethodCryptoBTC: "Bitcoin",
	domain.PaymentMethodCryptoETH: "Ethereum",
	domain.PaymentMethodVoucher:   "Voucher",
	domain.PaymentMethodCash:      "Cash",
}

func methodLabel(method domain.PaymentMethod) string {
	if label, ok := methodLabels[method]; ok {
		return label
	}
	return string(method)
}

func methodKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 PayPal / card", "checkout:method:"+string(domain.PaymentMethodPayPal)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("₿ Bitcoin", "checkout:method:"+string(domain.PaymentMethodCryptoBTC)),
			tgbotapi.NewInlineKeyboardButtonData("Ξ Ethereum", "checkout:method:"+string(domain.PaymentMethodCryptoETH)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎟 Voucher", "checkout:method:"+string(domain.PaymentMethodVoucher)),
			tgbotapi.NewInlineKeyboardButtonData("💵 Cash", "checkout:method:"+string(domain.PaymentMethodCash)),
		),
	)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Place order", "checkout:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Change method", "cart:checkout:back"),
		),
	)
}

func orderListText(orders []domain.Order, currency string) string {
	var b strings.Builder
	b.WriteString("📦 <b>Orders</b>\n\n")
	for _, order := range orders {
		fmt.Fprintf(&b, "<b>%s</b> — %s — %s\n",
			html.EscapeString(order.OrderNumber), order.Status, formatAmount(order.Payment.Total, currency))
	}
	return b.String()
}

func orderListKeyboard(orders []domain.Order) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(orders))
	for _, order := range orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel "+order.OrderNumber, "order:cancel:"+order.ID),
		))
	}
	if len(rows) == 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍 Shop again", "shop:browse"),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func paymentInstructionsText(order domain.Order, instr services.PaymentInstructions, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Order <b>%s</b> placed!\nTotal due: <b>%s</b>\n\n",
		html.EscapeString(order.OrderNumber), formatAmount(order.Payment.Total, currency))

	switch {
	case instr.RedirectURL != "":
		fmt.Fprintf(&b, "Complete your payment here:\n%s\n", instr.RedirectURL)
	case instr.Address != "":
		fmt.Fprintf(&b, "Send the exact amount to this address:\n<code>%s</code>\n", html.EscapeString(instr.Address))
		fmt.Fprintf(&b, "The payment completes after %d confirmation(s).\n", instr.RequiredConfirmations)
	case instr.Text != "":
		b.WriteString(instr.Text)
		b.WriteString("\n")
	}

	if !instr.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "\nThis payment expires at %s.", instr.ExpiresAt.UTC().Format("15:04 MST, Jan 2"))
	}
	return b.String()
}

func paymentKeyboard(paymentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Check payment status", "pay:check:"+paymentID),
		),
	)
}

func paymentStatusText(result services.PaymentStatusResult) string {
	switch result.Status {
	case domain.TransactionStatusCompleted:
		return "✅ Payment received! Your order is being processed."
	case domain.TransactionStatusPendingValidation:
		return "🕵️ " + result.Message
	case domain.TransactionStatusExpired:
		return "⌛ This payment window has expired. Start a new checkout with /cart."
	case domain.TransactionStatusFailed:
		return "❌ The payment failed. Please try again or pick another method."
	case domain.TransactionStatusRefunded:
		return "↩️ This payment was refunded."
	default:
		return "⏳ " + result.Message
	}
}
