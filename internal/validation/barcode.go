// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidBarcode проверяет контрольную цифру штрихкода GTIN-8, GTIN-12, GTIN-13 или GTIN-14.
func IsValidBarcode(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}

	sum := 0
	triple := false

	// Веса 3 и 1 чередуются справа налево, начиная с цифры перед контрольной.
	for i := len(code) - 1; i >= 0; i-- {
		ch := rune(code[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if triple {
			digit *= 3
		}
		sum += digit
		triple = !triple
	}

	return sum%10 == 0
}
