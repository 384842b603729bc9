package checkout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

var (
	cardNumberPattern = regexp.MustCompile(`^\d{4}\s?\d{4}\s?\d{4}\s?\d{4}$`)
	cvcPattern        = regexp.MustCompile(`^\d{3,4}$`)
)

// expiryYears is how many years ahead the expiry year selector offers
const expiryYears = 10

// ExpiryMonths returns the selectable expiry months
func ExpiryMonths() []string {
	months := make([]string, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, fmt.Sprintf("%02d", m))
	}
	return months
}

// ExpiryYears returns the selectable expiry years starting at now's year
func ExpiryYears(now time.Time) []string {
	years := make([]string, 0, expiryYears)
	for i := 0; i < expiryYears; i++ {
		years = append(years, strconv.Itoa(now.Year()+i))
	}
	return years
}

// NewCardDetails normalizes user input into the wire form
func NewCardDetails(number, expMonth, expYear, cvc, holder string) domain.CardDetails {
	return domain.CardDetails{
		Type:       "card",
		CardNumber: strings.TrimSpace(number),
		ExpMonth:   strings.TrimSpace(expMonth),
		ExpYear:    strings.TrimSpace(expYear),
		CVC:        strings.TrimSpace(cvc),
		HolderName: strings.TrimSpace(holder),
	}
}

// ValidateCard applies the client-side card checks. Passing them does not
// mean the provider will accept the card.
func ValidateCard(card domain.CardDetails, now time.Time) error {
	var details []string

	if !cardNumberPattern.MatchString(card.CardNumber) {
		details = append(details, "cardNumber: must be 16 digits")
	}
	if !cvcPattern.MatchString(card.CVC) {
		details = append(details, "cvc: must be 3 or 4 digits")
	}
	if !contains(ExpiryMonths(), card.ExpMonth) {
		details = append(details, "expMonth: must be 01-12")
	}
	if !contains(ExpiryYears(now), card.ExpYear) {
		details = append(details, fmt.Sprintf("expYear: must be between %d and %d", now.Year(), now.Year()+expiryYears-1))
	}
	if len([]rune(strings.TrimSpace(card.HolderName))) < 3 {
		details = append(details, "holderName: at least 3 characters")
	}

	if len(details) > 0 {
		return &errors.ValidationError{Message: "invalid payment details", Details: details}
	}
	return nil
}

// wireCard strips grouping spaces from the card number
func wireCard(card domain.CardDetails) domain.CardDetails {
	card.Type = "card"
	card.CardNumber = strings.ReplaceAll(card.CardNumber, " ", "")
	return card
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
