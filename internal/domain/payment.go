package domain

import "sort"

// paymentMethods is the registry of accepted payment-method codes and their
// display names. Orders store the codes; validation is referential against
// this set.
var paymentMethods = map[string]string{
	"bank_transfer": "Bank Transfer",
	"card":          "Card Payment",
	"cash":          "Cash",
	"paypal":        "PayPal",
	"wise":          "Wise",
	"revolut":       "Revolut",
	"skrill":        "Skrill",
	"webmoney":      "WebMoney",
	"qiwi":          "QIWI",
	"sberbank":      "Sberbank",
	"tinkoff":       "Tinkoff",
	"monobank":      "Monobank",
}

// KnownPaymentMethod reports whether code is a registered payment method.
func KnownPaymentMethod(code string) bool {
	_, ok := paymentMethods[code]
	return ok
}

// PaymentMethodName returns the display name for a method code, falling back
// to the code itself for unknown values.
func PaymentMethodName(code string) string {
	if name, ok := paymentMethods[code]; ok {
		return name
	}
	return code
}

// PaymentMethodCodes returns all registered method codes in sorted order.
func PaymentMethodCodes() []string {
	codes := make([]string, 0, len(paymentMethods))
	for code := range paymentMethods {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ValidatePaymentMethods filters methods down to registered codes, dropping
// duplicates while preserving order. It returns ErrInvalidPaymentMethods when
// the input is empty, contains an unknown code, or nothing survives.
func ValidatePaymentMethods(methods []string) ([]string, error) {
	if len(methods) == 0 {
		return nil, ErrInvalidPaymentMethods
	}

	seen := make(map[string]bool, len(methods))
	valid := make([]string, 0, len(methods))
	for _, m := range methods {
		if !KnownPaymentMethod(m) {
			return nil, ErrInvalidPaymentMethods
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		valid = append(valid, m)
	}
	return valid, nil
}
