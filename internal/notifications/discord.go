package notifications

import (
	"fmt"
	"time"

	"valor/internal/external"
)

// Discord embed colors (decimal values of the hex codes).
const (
	colorOrder    = 0x22c55e // Green
	colorError    = 0xdc2626 // Red
	colorLowStock = 0xfbbf24 // Amber
)

const mentionHere = "@here"

func formatDollars(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func orderAlertMessage(a OrderAlert, now time.Time) external.DiscordMessage {
	payment := a.PaymentMethod
	if payment == "" {
		payment = "Card"
	}

	fields := []external.DiscordEmbedField{
		{Name: "Order ID", Value: "`" + a.OrderNumber + "`", Inline: true},
		{Name: "Product", Value: a.ProductName, Inline: true},
		{Name: "Variant", Value: a.VariantName, Inline: true},
		{Name: "Customer", Value: "||" + a.CustomerEmail + "||", Inline: true},
		{Name: "Amount", Value: "**" + formatDollars(a.AmountCents) + "**", Inline: true},
		{Name: "Payment", Value: payment, Inline: true},
	}
	if a.StripePaymentID != "" {
		fields = append(fields, external.DiscordEmbedField{Name: "Stripe ID", Value: "`" + a.StripePaymentID + "`"})
	}
	stock := "Unlimited"
	if a.RemainingStock != nil {
		stock = fmt.Sprintf("%d keys", *a.RemainingStock)
	}
	fields = append(fields, external.DiscordEmbedField{Name: "Remaining Stock", Value: stock})

	return external.DiscordMessage{
		Embeds: []external.DiscordEmbed{{
			Title:     "New Order Completed",
			Color:     colorOrder,
			Fields:    fields,
			Footer:    &external.DiscordEmbedFooter{Text: "Valor Sales"},
			Timestamp: &now,
		}},
	}
}

func errorAlertMessage(a ErrorAlert, now time.Time) external.DiscordMessage {
	fields := []external.DiscordEmbedField{
		{Name: "Order", Value: "`" + a.OrderNumber + "`", Inline: true},
		{Name: "Customer", Value: a.CustomerEmail, Inline: true},
		{Name: "Error", Value: a.Error},
	}
	if a.Context != "" {
		fields = append(fields, external.DiscordEmbedField{Name: "Context", Value: a.Context})
	}

	return external.DiscordMessage{
		Content: mentionHere,
		Embeds: []external.DiscordEmbed{{
			Title:       "Order Processing Error",
			Description: "An error occurred while processing an order",
			Color:       colorError,
			Fields:      fields,
			Footer:      &external.DiscordEmbedFooter{Text: "Valor - Requires Attention"},
			Timestamp:   &now,
		}},
	}
}

func stockAlertMessage(a StockAlert, now time.Time) external.DiscordMessage {
	return external.DiscordMessage{
		Content: mentionHere,
		Embeds: []external.DiscordEmbed{{
			Title:       "Low Stock Alert",
			Description: fmt.Sprintf("Stock is running low for **%s** - %s", a.ProductName, a.VariantName),
			Color:       colorLowStock,
			Fields: []external.DiscordEmbedField{
				{Name: "Remaining Keys", Value: fmt.Sprintf("%d", a.RemainingStock), Inline: true},
			},
			Footer:    &external.DiscordEmbedFooter{Text: "Valor - Restock Soon!"},
			Timestamp: &now,
		}},
	}
}
