package provider

import "fmt"

// ean13Valid reports whether a 13-digit string passes the standard EAN-13
// check: weights alternate 1,3 over the first twelve digits and the check
// digit brings the total to a multiple of ten.
func ean13Valid(digits string) bool {
	if len(digits) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(digits[12]-'0')
}

// luhnValid reports whether a digit string (check digit included) passes the
// Luhn mod-10 check.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// LuhnCheckDigit computes the Luhn check digit for a digit string without
// one. Exposed for test payload construction.
func LuhnCheckDigit(digits string) string {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return fmt.Sprintf("%d", (10-sum%10)%10)
}

// EAN13CheckDigit computes the check digit for the first twelve digits.
// Exposed for test payload construction.
func EAN13CheckDigit(digits string) string {
	sum := 0
	for i := 0; i < 12 && i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return fmt.Sprintf("%d", (10-sum%10)%10)
}

// sevenCheckBlock computes the three-digit check block: digit sum of the
// ticket and serial segments, mod 1000, zero padded.
func sevenCheckBlock(ticket, serial string) string {
	sum := 0
	for _, r := range ticket + serial {
		sum += int(r - '0')
	}
	return fmt.Sprintf("%03d", sum%1000)
}

// CheckBlock computes the seven_ticket check block for test payload
// construction.
func CheckBlock(ticket, serial string) string {
	return sevenCheckBlock(ticket, serial)
}
