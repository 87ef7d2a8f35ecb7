package customer

import (
	"strconv"
	"strings"
	"time"
)

// DefaultGuestDomain is the mail domain used for synthesized guest emails.
const DefaultGuestDomain = "guest.local"

const guestSentinel = "guest"

// Identity is the resolved owner of an order.
type Identity struct {
	// Email is the canonical lowercase email, empty when none could be resolved.
	Email string
	// UserID is the registered user id, or Email for guest checkouts.
	UserID string
	Guest  bool
	// Synthesized is set when Email was generated from a guest token.
	Synthesized bool
}

// NormalizeEmail lowercases and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsGuestEmail reports whether a normalized email denotes a guest: the literal
// sentinel, the guest- prefix, or an address at the guest domain.
func IsGuestEmail(email, domain string) bool {
	if email == guestSentinel || strings.HasPrefix(email, guestSentinel+"-") {
		return true
	}
	return domain != "" && strings.HasSuffix(email, "@"+domain)
}

// isSentinel reports whether v is a guest token rather than a real address.
func isSentinel(v string) bool {
	if strings.Contains(v, "@") {
		return false
	}
	return v == guestSentinel || strings.HasPrefix(v, guestSentinel+"-")
}

func synthesizeGuestEmail(now time.Time, domain string) string {
	return guestSentinel + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "@" + domain
}
