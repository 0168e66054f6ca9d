// Command checkout runs the storefront checkout against a running order
// service. The cart is kept in a local JSON file between runs.
//
//	checkout add -id p-1 -name "Wireless Mouse" -qty 2 -price 54.99
//	checkout show
//	checkout card -email ada@example.com -password s3cret -number "4111 1111 1111 1111" -card-name "Ada" -expiry 12/29 -cvv 123 ...
//	checkout paypal -token <jwt> -txn 5O190127TN364715T -payer-email buyer@example.com ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/storefront/internal/checkout"
	"github.com/MikeMC777/storefront/internal/config"
	"github.com/MikeMC777/storefront/internal/order"
	"github.com/MikeMC777/storefront/internal/payment"
	"github.com/MikeMC777/storefront/internal/user"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: checkout <add|show|clear|card|paypal> [flags]")
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(ctx, os.Args[2:])
	case "show":
		err = runShow(ctx, os.Args[2:])
	case "clear":
		err = runClear(ctx, os.Args[2:])
	case "card", "paypal":
		err = runPay(ctx, os.Args[1], os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func cartFlag(fs *flag.FlagSet) *string {
	return fs.String("cart", "cart.json", "cart file")
}

func runAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := cartFlag(fs)
	id := fs.String("id", "", "product id")
	name := fs.String("name", "", "product name")
	qty := fs.Int("qty", 1, "quantity")
	price := fs.String("price", "", "unit price")
	image := fs.String("image", "", "image url")
	_ = fs.Parse(args)

	p, err := decimal.NewFromString(*price)
	if err != nil || *id == "" || *qty < 1 {
		return errors.New("add needs -id, -qty >= 1 and a numeric -price")
	}
	store := &checkout.FileCartStore{Path: *path}
	cart, err := store.Load(ctx)
	if err != nil {
		return err
	}
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == *id {
			cart.Items[i].Quantity += *qty
			merged = true
		}
	}
	if !merged {
		cart.Items = append(cart.Items, checkout.CartItem{ProductID: *id, Name: *name, Quantity: *qty, UnitPrice: p, Image: *image})
	}
	if err := store.Save(ctx, cart); err != nil {
		return err
	}
	printCart(cart)
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := cartFlag(fs)
	_ = fs.Parse(args)
	cart, err := (&checkout.FileCartStore{Path: *path}).Load(ctx)
	if err != nil {
		return err
	}
	printCart(cart)
	return nil
}

func runClear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	path := cartFlag(fs)
	_ = fs.Parse(args)
	return (&checkout.FileCartStore{Path: *path}).Clear(ctx)
}

func printCart(c checkout.Cart) {
	if c.Empty() {
		fmt.Println("cart is empty")
		return
	}
	for _, it := range c.Items {
		fmt.Printf("%-24s x%-3d %10s\n", it.Name, it.Quantity, it.UnitPrice.StringFixed(2))
	}
	fmt.Printf("%-29s %10s\n", "total", c.Total().StringFixed(2))
}

func runPay(ctx context.Context, mode string, args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	path := cartFlag(fs)
	orderURL := fs.String("order-url", "http://localhost"+cfg.OrderSvcAddr, "order service base url")
	token := fs.String("token", "", "bearer token, skips sign in")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")

	var ship order.Address
	fs.StringVar(&ship.Street, "street", "", "shipping street")
	fs.StringVar(&ship.City, "city", "", "shipping city")
	fs.StringVar(&ship.PostalCode, "postal", "", "shipping postal code")
	fs.StringVar(&ship.Country, "country", "", "shipping country")

	var card checkout.CardDetails
	fs.StringVar(&card.Number, "number", "", "card number")
	fs.StringVar(&card.Name, "card-name", "", "name on card")
	fs.StringVar(&card.Expiry, "expiry", "", "card expiry MM/YY")
	fs.StringVar(&card.CVV, "cvv", "", "card cvv")
	delay := fs.Duration("delay", 2*time.Second, "simulated card processing time")

	var approval checkout.PayPalApproval
	fs.StringVar(&approval.OrderID, "txn", "", "PayPal order id from the approval")
	fs.StringVar(&approval.PayerEmail, "payer-email", "", "PayPal payer email")
	fs.StringVar(&approval.PayerID, "payer-id", "", "PayPal payer id")
	_ = fs.Parse(args)

	session := &checkout.Session{Token: *token, Cart: &checkout.FileCartStore{Path: *path}}
	if session.Token == "" {
		if *email == "" || *password == "" {
			return errors.New("sign in with -email and -password or pass -token")
		}
		dir, err := user.DialDirectory(cfg.UserSvcAddr)
		if err != nil {
			return err
		}
		defer dir.Close()
		s, err := dir.Authenticate(ctx, *email, *password)
		if err != nil {
			return err
		}
		session.UserID, session.Token = s.UserID, s.Token
	}

	api := checkout.NewHTTPOrderAPI(*orderURL, session.Token)
	co := checkout.NewOrchestrator(api, session, payment.NewSimulated(*delay, 0))

	var (
		conf *checkout.Confirmation
		err  error
	)
	if mode == "card" {
		fmt.Println("Processing payment...")
		conf, err = co.PayByCard(ctx, ship, card)
	} else {
		conf, err = co.ApprovePayPal(ctx, ship, approval)
	}
	if err != nil {
		return err
	}

	fmt.Println("Order placed successfully!")
	fmt.Printf("  order:   %s\n", conf.OrderID)
	fmt.Printf("  total:   %s\n", conf.TotalPrice.StringFixed(2))
	fmt.Printf("  method:  %s (%s)\n", conf.PaymentMethod, conf.TransactionID)
	if conf.CardLast4 != "" {
		fmt.Printf("  card:    **** %s\n", conf.CardLast4)
	}
	fmt.Printf("  details: %s%s\n", strings.TrimRight(*orderURL, "/"), conf.OrderPath())
	return nil
}
