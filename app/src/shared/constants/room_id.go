package constants

import (
	"fmt"
	"strings"

	sharederrors "airflow-service/app/src/shared/errors"
)

// ParseRoomID validates a room identifier: 1..MaxRoomIDLength characters of
// letters, digits, '-', '_' or '.'. The result is lowercased.
func ParseRoomID(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sharederrors.ErrInvalidRoomID)
	}
	if len(trimmed) > MaxRoomIDLength {
		return "", fmt.Errorf("%w: length %d", sharederrors.ErrInvalidRoomID, len(trimmed))
	}

	for _, r := range trimmed {
		if !isRoomIDRune(r) {
			return "", fmt.Errorf("%w: invalid character %q", sharederrors.ErrInvalidRoomID, r)
		}
	}

	return strings.ToLower(trimmed), nil
}

func isRoomIDRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r == '-', r == '_', r == '.':
		return true
	default:
		return false
	}
}
