package config

import "fmt"

// parsePortRange parses a "low-high" string, matching fmt.Sscanf's
// (n, err) return shape so decodePortRanges can treat a short parse the
// same way as a hard error.
func parsePortRange(s string, lo, hi *int) (int, error) {
	return fmt.Sscanf(s, "%d-%d", lo, hi)
}
