// Package storage provides the report mailing list, either from Postgres
// or from a static list in the configuration.
package storage

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
)

// RecipientSource lists the addresses a report is mailed to.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]string, error)
}

// StaticRecipients is a fixed list, typically from the config file.
type StaticRecipients []string

func (s StaticRecipients) Recipients(context.Context) ([]string, error) {
	return CleanAddresses(s), nil
}

// CleanAddresses trims addresses, drops invalid ones and removes
// case-insensitive duplicates, keeping the first spelling.
func CleanAddresses(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		addr, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr.Address)
	}
	return out
}

// MaskEmail hides most of the local part: "alice@example.com" -> "a***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// MaskDSN hides the password of a connection URL for display.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	return u.Redacted()
}
