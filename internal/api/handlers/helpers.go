package handlers

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// normalizeAddress lowercases a wallet address and rejects anything
// that is not a 20-byte hex address. Returns "" when invalid.
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		return ""
	}
	return strings.ToLower(address)
}
