package format

import (
	"strconv"
)

// Price renders a catalog price as "$ " followed by the shortest decimal form.
// Example: Price(10) => "$ 10", Price(4800.5) => "$ 4800.5"
func Price(amount float64) string {
	return "$ " + strconv.FormatFloat(amount, 'f', -1, 64)
}

// Count renders a non-negative counter value.
func Count(n int) string {
	if n < 0 {
		n = 0
	}
	return strconv.Itoa(n)
}
