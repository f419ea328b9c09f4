package listing

import (
	"fmt"
	"strconv"
	"strings"
)

const sizeSymbols = "BKMGTPEZY"

// HumanSize decodes a human-readable file size ("1M", "2.5 G", "1024") into
// bytes using binary (1024) multipliers. nil is returned for anything that
// cannot be decoded; this function never panics on bad input.
func HumanSize(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	letter := strings.ToUpper(s[len(s)-1:])
	idx := strings.Index(sizeSymbols, letter)
	if idx < 0 {
		return nil
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
	if err != nil {
		return nil
	}
	n := int64(num * float64(int64(1)<<(idx*10)))
	return &n
}

// SizeofFmt renders a byte count the way directory indexes do ("3.4MiB").
func SizeofFmt(num int64) string {
	val := float64(num)
	for _, unit := range []string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi"} {
		if val < 1024 && val > -1024 {
			return fmt.Sprintf("%3.1f%sB", val, unit)
		}
		val /= 1024.0
	}
	return fmt.Sprintf("%.1fYiB", val)
}
