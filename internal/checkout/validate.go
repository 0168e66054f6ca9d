package checkout

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/MikeMC777/storefront/internal/order"
)

// Validation failures carry the message shown to the shopper.
var (
	ErrShippingIncomplete = errors.New("Please fill in all shipping address fields")
	ErrCardIncomplete     = errors.New("Please fill in all card details")
	ErrCardNumber         = errors.New("Invalid card number")
	ErrCVV                = errors.New("Invalid CVV")
	ErrExpiryFormat       = errors.New("Invalid expiry date")
	ErrExpiryMonth        = errors.New("Invalid expiry month")
	ErrCardExpired        = errors.New("Card has expired")
	ErrCartEmpty          = errors.New("Your cart is empty")
)

type CardDetails struct {
	Number string
	Name   string
	Expiry string // MM/YY
	CVV    string
}

// Last4 returns the last four digits of the normalized card number.
func (c CardDetails) Last4() string {
	n := stripSpaces(c.Number)
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

func ValidateShipping(a order.Address) error {
	if order.ValidateAddress(a) != nil {
		return ErrShippingIncomplete
	}
	return nil
}

// ValidateCard checks the card against the calendar month of now.
func ValidateCard(c CardDetails, now time.Time) error {
	if strings.TrimSpace(c.Number) == "" || strings.TrimSpace(c.Name) == "" ||
		strings.TrimSpace(c.Expiry) == "" || strings.TrimSpace(c.CVV) == "" {
		return ErrCardIncomplete
	}
	num := stripSpaces(c.Number)
	if len(num) < 15 || len(num) > 16 || !allDigits(num) {
		return ErrCardNumber
	}
	cvv := strings.TrimSpace(c.CVV)
	if len(cvv) < 3 || len(cvv) > 4 || !allDigits(cvv) {
		return ErrCVV
	}

	mm, yy, ok := strings.Cut(strings.TrimSpace(c.Expiry), "/")
	if !ok || len(mm) != 2 || len(yy) != 2 || !allDigits(mm) || !allDigits(yy) {
		return ErrExpiryFormat
	}
	month, _ := strconv.Atoi(mm)
	year, _ := strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return ErrExpiryMonth
	}
	curYear, curMonth := now.Year()%100, int(now.Month())
	if year < curYear || (year == curYear && month < curMonth) {
		return ErrCardExpired
	}
	return nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
