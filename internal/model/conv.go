package model

// Itoa is a minimal int-to-string converter for hot-path usage.
// Avoids importing strconv to eliminate unnecessary overhead.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Cents converts a dollar float to int64 cents, rounding to nearest.
func Cents(dollars float64) int64 {
	if dollars >= 0 {
		return int64(dollars*100 + 0.5)
	}
	return int64(dollars*100 - 0.5)
}

// Dollars converts int64 cents to a float64 dollar amount.
func Dollars(cents int64) float64 {
	return float64(cents) / 100.0
}
