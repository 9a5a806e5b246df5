package auth_service_config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ttlUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseTTL reads "<integer><unit>" with unit one of s, m, h, d. A bare
// integer is seconds. The result must be positive.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrConfig("ttl is empty")
	}
	unit := time.Second
	digits := s
	if u, ok := ttlUnits[s[len(s)-1]]; ok {
		unit = u
		digits = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrConfig(fmt.Sprintf("ttl %q: want <integer><s|m|h|d>", s))
	}
	if n <= 0 {
		return 0, ErrConfig(fmt.Sprintf("ttl %q must be positive", s))
	}
	if n > int64(1<<62)/int64(unit) {
		return 0, ErrConfig(fmt.Sprintf("ttl %q overflows", s))
	}
	return time.Duration(n) * unit, nil
}
