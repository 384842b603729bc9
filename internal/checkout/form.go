package checkout

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/corekit/storefront/internal/domain"
	"github.com/corekit/storefront/pkg/errors"
)

// formValidator reads the same binding tags gin uses on the wire types
var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// OrderForm is what the shopper fills in on the checkout page
type OrderForm struct {
	Customer        domain.CustomerInfo
	ShippingAddress domain.ShippingAddress
	Notes           string
	PaymentMethod   domain.PaymentMethodType
}

// Validate applies the checkout form rules
func (f OrderForm) Validate() error {
	var details []string

	customer := f.Customer
	customer.FullName = strings.TrimSpace(customer.FullName)
	customer.Email = strings.TrimSpace(customer.Email)
	details = append(details, fieldErrors(formValidator.Struct(customer))...)

	details = append(details, fieldErrors(formValidator.Struct(trimAddress(f.ShippingAddress)))...)

	if f.PaymentMethod != "" && !f.PaymentMethod.IsValid() {
		details = append(details, "paymentMethod: must be test or card")
	}

	if len(details) > 0 {
		return &errors.ValidationError{Message: "invalid checkout form", Details: details}
	}
	return nil
}

// request builds the order payload. expected is the grand total the shopper
// was shown, letting the server detect price drift.
func (f OrderForm) request(items []domain.CartItemRequest, expected decimal.Decimal) domain.CreateOrderRequest {
	method := f.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCard
	}
	return domain.CreateOrderRequest{
		Customer: domain.CustomerInfo{
			FullName: strings.TrimSpace(f.Customer.FullName),
			Email:    strings.TrimSpace(f.Customer.Email),
			Phone:    strings.TrimSpace(f.Customer.Phone),
		},
		ShippingAddress: trimAddress(f.ShippingAddress),
		Items:           items,
		Notes:           strings.TrimSpace(f.Notes),
		PaymentMethod:   method,
		ExpectedTotal:   &expected,
	}
}

func trimAddress(a domain.ShippingAddress) domain.ShippingAddress {
	a.Street = strings.TrimSpace(a.Street)
	a.Number = strings.TrimSpace(a.Number)
	a.City = strings.TrimSpace(a.City)
	a.Province = strings.TrimSpace(a.Province)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	return a
}

func fieldErrors(err error) []string {
	if err == nil {
		return nil
	}
	fields, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(fields))
	for _, fe := range fields {
		switch fe.Tag() {
		case "required":
			out = append(out, fe.Field()+": required")
		case "min":
			out = append(out, fe.Field()+": at least "+fe.Param()+" characters")
		case "email":
			out = append(out, fe.Field()+": invalid address")
		default:
			out = append(out, fe.Field()+": invalid")
		}
	}
	return out
}
