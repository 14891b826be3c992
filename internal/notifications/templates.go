package notifications

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/teleshop/bot/internal/domain"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders a minor-unit amount as a grouped decimal string,
// e.g. 123456 -> "1,234.56 USD".
func FormatAmount(minor int64, currency string) string {
	major := minor / 100
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}
	out := printer.Sprintf("%d.%02d", major, cents)
	if currency = strings.TrimSpace(currency); currency != "" {
		out += " " + currency
	}
	return out
}

func orderCreatedText(order domain.Order, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Order <b>%s</b> confirmed!\n\n", html.EscapeString(order.OrderNumber))
	for _, item := range order.Items {
		fmt.Fprintf(&b, "• %s ×%d — %s\n",
			html.EscapeString(item.Name), item.Quantity, FormatAmount(item.Total, ""))
	}
	if order.Payment.Discount > 0 {
		fmt.Fprintf(&b, "\nDiscount: -%s", FormatAmount(order.Payment.Discount, ""))
	}
	if order.Payment.Fees > 0 {
		fmt.Fprintf(&b, "\nFees: %s", FormatAmount(order.Payment.Fees, ""))
	}
	fmt.Fprintf(&b, "\nTotal: <b>%s</b>", FormatAmount(order.Payment.Total, currency))
	return b.String()
}

var statusLines = map[domain.OrderStatus]string{
	domain.OrderStatusProcessing: "✅ Payment received. Your order is being prepared.",
	domain.OrderStatusReady:      "📦 Your order is ready.",
	domain.OrderStatusDelivered:  "🚚 Your order has been delivered.",
	domain.OrderStatusCompleted:  "🎉 Your order is complete. Thank you!",
	domain.OrderStatusCancelled:  "❌ Your order was cancelled.",
	domain.OrderStatusRejected:   "⛔ Your order was rejected.",
	domain.OrderStatusRefunded:   "💸 Your order was refunded.",
}

func orderStatusText(order domain.Order, entry domain.TimelineEntry) string {
	line, ok := statusLines[entry.Status]
	if !ok {
		line = fmt.Sprintf("Order status is now %s.", entry.Status)
	}
	text := fmt.Sprintf("Order <b>%s</b>\n%s", html.EscapeString(order.OrderNumber), line)
	if note := strings.TrimSpace(entry.Note); note != "" && entry.Status != domain.OrderStatusProcessing {
		text += "\n" + html.EscapeString(note)
	}
	return text
}

func paymentCompletedText(tx domain.Transaction, currency string) string {
	return fmt.Sprintf("💳 Payment of <b>%s</b> received for your order.",
		FormatAmount(tx.Amount.Total, currency))
}

func paymentRefundedText(tx domain.Transaction, currency string) string {
	amount := tx.Amount.Total
	if tx.Refund != nil {
		amount = tx.Refund.Amount
	}
	return fmt.Sprintf("💸 A refund of <b>%s</b> was credited to your shop balance.",
		FormatAmount(amount, currency))
}
