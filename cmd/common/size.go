package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	KB int64 = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([kmgt]?)b?$`)

// ParseSize parses a human-readable byte size such as "512", "1.5k" or
// "100MB". Units are binary.
func ParseSize(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	mult := int64(1)
	switch m[2] {
	case "k":
		mult = KB
	case "m":
		mult = MB
	case "g":
		mult = GB
	case "t":
		mult = TB
	}
	return int64(v * float64(mult)), nil
}
