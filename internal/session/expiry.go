package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time. Tests inject a controllable clock to
// simulate expiry without waiting.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// claimsParser decodes the token envelope without verifying the signature.
// The client trusts what the backend issued; it only needs the exp claim.
var claimsParser = jwt.NewParser()

// ExpiresAt returns the exp claim of an access credential.
// ok is false when the token cannot be decoded or carries no exp claim.
func ExpiresAt(token string) (time.Time, bool) {
	exp, decoded := decodeExpiry(token)
	if !decoded || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpiringSoon reports whether the access credential is expired or will
// expire within margin of now.
//
// An empty or undecodable token counts as expiring so that callers renew.
// A token that decodes but has no exp claim counts as valid: it cannot be
// checked, and treating it as expiring would renew on every request.
func IsExpiringSoon(token string, margin time.Duration, now time.Time) bool {
	if token == "" {
		return true
	}
	if margin < 0 {
		margin = 0
	}

	exp, decoded := decodeExpiry(token)
	if !decoded {
		return true
	}
	if exp == nil {
		return false
	}

	return exp.Time.Sub(now) < margin
}

// decodeExpiry returns the exp claim (nil when absent or not numeric) and
// whether the envelope could be decoded at all.
func decodeExpiry(token string) (*jwt.NumericDate, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, true
	}
	return exp, true
}
