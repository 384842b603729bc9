package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/checkout"
	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/order-status/main.go <order-id>")
		fmt.Println("Example: go run cmd/order-status/main.go 3f2c9a4e-8d1b-4a57-9f0e-2b6c1d7e5a90")
		os.Exit(1)
	}

	orderID := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := commerce.NewClient(cfg.Commerce, commerce.StaticToken(cfg.Commerce.APIToken), logger, nil)
	submitter := checkout.NewSubmitter(client, logger)

	fmt.Printf("🔍 Looking up order: %s\n\n", orderID)

	order, err := submitter.Lookup(context.Background(), orderID)
	if err != nil {
		if errors.IsNotFound(err) {
			fmt.Printf("❌ Order %s not found\n", orderID)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Failed to fetch order: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Order #%s\n", order.OrderNumber)
	fmt.Printf("   ID: %s\n", order.OrderID)
	fmt.Printf("   Status: %s\n", order.Status)
	fmt.Printf("   Payment method: %s\n", order.PaymentMethod)
	fmt.Printf("   Customer: %s <%s>\n", order.Customer.FullName, order.Customer.Email)
	fmt.Printf("   Created: %s\n", order.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println("   Items:")
	for _, item := range order.Items {
		fmt.Printf("      %dx %s (%s) @ %s = %s\n", item.Quantity, item.Name, item.ProductID, item.Price.StringFixed(2), item.Subtotal.StringFixed(2))
	}
	fmt.Printf("   Total: %s\n\n", order.Totals.GrandTotal.StringFixed(2))

	switch checkout.NextStepFor(order) {
	case checkout.StepComplete:
		fmt.Println("✅ Nothing left to do for this order.")
	case checkout.StepPayment:
		fmt.Printf("💳 Awaiting payment: storefront pay %s <card> <mm> <yyyy> <cvc> <holder>\n", order.OrderID)
	default:
		if order.Status == domain.OrderStatusPending {
			fmt.Println("⏳ Received, awaiting confirmation by the store.")
			return
		}
		fmt.Println("⛔ This order can no longer be paid.")
	}
}
