package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/cart"
	"github.com/corekit/storefront/internal/checkout"
	"github.com/corekit/storefront/internal/commerce"
	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/internal/idempotency"
	"github.com/corekit/storefront/internal/logging"
	"github.com/corekit/storefront/internal/storage"
	"github.com/corekit/storefront/pkg/errors"
)

func usage() {
	fmt.Println("Usage: storefront <command> [args]")
	fmt.Println()
	fmt.Println("  products                                   list the catalog")
	fmt.Println("  add <productId> [qty]                      add a product to the cart")
	fmt.Println("  set <productId> <qty>                      change a line quantity (0 removes it)")
	fmt.Println("  remove <productId>                         remove a line")
	fmt.Println("  clear                                      empty the cart")
	fmt.Println("  show                                       print the cart")
	fmt.Println("  checkout <order.json>                      validate the cart and place the order")
	fmt.Println("  resume <orderId>                           show where an order's checkout stands")
	fmt.Println("  pay <orderId> <card> <mm> <yyyy> <cvc> <holder>")
}

// orderFile is the JSON shape accepted by the checkout command
type orderFile struct {
	Customer        domain.CustomerInfo      `json:"customer"`
	ShippingAddress domain.ShippingAddress   `json:"shippingAddress"`
	Notes           string                   `json:"notes"`
	PaymentMethod   domain.PaymentMethodType `json:"paymentMethod"`
}

type app struct {
	fs     afero.Fs
	client *commerce.Client
	cart   *cart.Store
	keys   *idempotency.KeyManager
	orch   *checkout.Orchestrator
	out    io.Writer
	logger *zap.Logger
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a, closeSession, err := newApp(ctx, cfg, afero.NewOsFs(), logger)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Failed to initialize storefront: %v\n", err)
		os.Exit(1)
	}

	err = a.run(ctx, os.Args[1], os.Args[2:])
	closeSession()
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, fs afero.Fs, logger *zap.Logger) (*app, func(), error) {
	durable := storage.NewFileStore(fs, cfg.Storage.CartDir)

	// each command is its own process, so the session must outlive it
	var session storage.Store = storage.NewSessionFileStore(fs, filepath.Join(cfg.Storage.CartDir, "session"), cfg.Storage.SessionTTL)
	closeSession := func() {}
	if cfg.Storage.SessionRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.SessionRedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to session redis: %w", err)
		}
		session = storage.NewRedisStore(rdb, "storefront:session", cfg.Storage.SessionTTL)
		closeSession = func() { _ = rdb.Close() }
	}

	client := commerce.NewClient(cfg.Commerce, commerce.StaticToken(cfg.Commerce.APIToken), logger, nil)
	cartStore := cart.NewStore(ctx, durable, cfg.Storage.CartKey, cart.NewLogNotifier(logger), logger)
	keys := idempotency.NewKeyManager(session, cfg.Storage.IdempotencyKey, logger)

	orch := checkout.NewOrchestrator(
		cartStore,
		keys,
		checkout.NewValidator(client, logger),
		checkout.NewSubmitter(client, logger),
		checkout.NewPaymentCoordinator(client, logger),
		logger,
	)

	return &app{
		fs:     fs,
		client: client,
		cart:   cartStore,
		keys:   keys,
		orch:   orch,
		out:    os.Stdout,
		logger: logger,
	}, closeSession, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "products":
		return a.products(ctx)
	case "add":
		if len(args) < 1 {
			return fmt.Errorf("usage: add <productId> [qty]")
		}
		qty := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			qty = n
		}
		return a.add(ctx, args[0], qty)
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: set <productId> <qty>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		a.cart.SetQuantity(ctx, args[0], qty)
		return a.show()
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <productId>")
		}
		a.cart.Remove(ctx, args[0])
		return a.show()
	case "clear":
		a.cart.Clear(ctx)
		return a.show()
	case "show":
		return a.show()
	case "checkout":
		if len(args) != 1 {
			return fmt.Errorf("usage: checkout <order.json>")
		}
		return a.checkout(ctx, args[0])
	case "resume":
		if len(args) != 1 {
			return fmt.Errorf("usage: resume <orderId>")
		}
		out, err := a.orch.Resume(ctx, args[0])
		a.printOutcome(out)
		return err
	case "pay":
		if len(args) < 6 {
			return fmt.Errorf("usage: pay <orderId> <card> <mm> <yyyy> <cvc> <holder>")
		}
		card := checkout.NewCardDetails(args[1], args[2], args[3], args[4], strings.Join(args[5:], " "))
		return a.pay(ctx, args[0], card)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) products(ctx context.Context) error {
	products, err := a.client.ListProducts(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
	}
	return w.Flush()
}

func (a *app) add(ctx context.Context, productID string, qty int) error {
	product, err := a.client.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := a.cart.Add(ctx, product.Product, qty); err != nil {
		return err
	}
	return a.show()
}

func (a *app) show() error {
	lines := a.cart.Snapshot()
	if len(lines) == 0 {
		fmt.Fprintln(a.out, "Your cart is empty.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQTY\tUNIT\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.ProductID, l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(w, "\t\t%d\t\t%s\n", a.cart.TotalItemCount(), a.cart.TotalPrice().StringFixed(2))
	return w.Flush()
}

func (a *app) checkout(ctx context.Context, path string) error {
	raw, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read order file: %w", err)
	}
	var file orderFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse order file: %w", err)
	}
	form := checkout.OrderForm{
		Customer:        file.Customer,
		ShippingAddress: file.ShippingAddress,
		Notes:           file.Notes,
		PaymentMethod:   file.PaymentMethod,
	}
	if err := form.Validate(); err != nil {
		return err
	}

	out, err := a.orch.Enter(ctx)
	if err != nil || out.State != checkout.StateReadyToSubmit {
		a.printOutcome(out)
		return err
	}
	a.printValidation(out.Validation)

	out, err = a.orch.Submit(ctx, form)
	a.printOutcome(out)
	if errors.IsConflict(err) {
		a.printValidation(out.Validation)
	}
	return err
}

func (a *app) pay(ctx context.Context, orderID string, card domain.CardDetails) error {
	out, err := a.orch.Resume(ctx, orderID)
	if err != nil {
		a.printOutcome(out)
		return err
	}
	if out.State != checkout.StateAwaitingPayment {
		a.printOutcome(out)
		return nil
	}

	out, err = a.orch.Pay(ctx, card)
	a.printOutcome(out)
	return err
}

func (a *app) printValidation(v *domain.CartValidationResult) {
	if v == nil {
		return
	}
	for _, warning := range v.Warnings {
		fmt.Fprintf(a.out, "⚠️  %s\n", warning)
	}
	fmt.Fprintf(a.out, "Items %s  Shipping %s  Taxes %s  Total %s\n",
		v.Totals.ItemsTotal.StringFixed(2),
		v.Totals.Shipping.StringFixed(2),
		v.Totals.Taxes.StringFixed(2),
		v.Totals.GrandTotal.StringFixed(2),
	)
}

func (a *app) printOutcome(out *checkout.Outcome) {
	if out == nil {
		return
	}
	switch out.Redirect {
	case checkout.RedirectCatalog:
		fmt.Fprintln(a.out, "Your cart is empty. Run `storefront products` to browse the catalog.")
		return
	case checkout.RedirectLogin:
		fmt.Fprintln(a.out, "Your session has expired. Set COMMERCE_API_TOKEN and try again.")
		return
	}
	if out.Message != "" {
		fmt.Fprintln(a.out, out.Message)
	}
	if out.Order != nil && out.State == checkout.StateAwaitingPayment {
		fmt.Fprintf(a.out, "Pay with: storefront pay %s <card> <mm> <yyyy> <cvc> <holder>\n", out.Order.OrderID)
	}
	if out.State == checkout.StateDone {
		fmt.Fprintf(a.out, "✅ Order %s (%s)\n", out.Order.OrderNumber, out.Order.OrderID)
	}
}
