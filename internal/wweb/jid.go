package wweb

import (
	"fmt"
	"strings"
)

const userServer = "s.whatsapp.net"

// ToJID normalizes a user-supplied recipient (phone number or jid) into the
// platform's canonical jid form. Already-canonical jids pass through.
func ToJID(to string) (string, error) {
	s := strings.TrimSpace(to)
	if s == "" {
		return "", fmt.Errorf("%w: empty recipient", ErrBadRecipient)
	}
	if strings.Contains(s, "@") {
		return s, nil
	}

	digits := strings.TrimPrefix(s, "+")
	digits = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, digits)

	if len(digits) < 5 {
		return "", fmt.Errorf("%w: %q", ErrBadRecipient, to)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrBadRecipient, to)
		}
	}

	return digits + "@" + userServer, nil
}
