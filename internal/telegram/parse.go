package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCountArg parses the optional count of /latest. An empty argument
// yields def; values must be between 1 and limit.
func ParseCountArg(args string, def, limit int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 || n > limit {
		return 0, fmt.Errorf("count must be between 1 and %d", limit)
	}
	return n, nil
}

// ParseLeadArg extracts a document ID from a command argument string.
func ParseLeadArg(args string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", fmt.Errorf("subscriber ID is required")
	}
	return strings.Fields(s)[0], nil
}
