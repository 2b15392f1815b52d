// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidPaymentMethod проверяет, что способ оплаты принимается агентством.
func IsValidPaymentMethod(method string) bool {
	switch method {
	case "cash", "mobile_money", "bank_transfer":
		return true
	}
	return false
}

// IsValidCurrencyCode проверяет, что код валюты состоит из трёх заглавных латинских букв.
func IsValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}

	for _, ch := range code {
		if ch > unicode.MaxASCII || !unicode.IsUpper(ch) {
			return false
		}
	}

	return true
}
