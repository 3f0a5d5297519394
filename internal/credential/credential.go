// Package credential holds the portal credential, its expiry policy, the
// durable cookie file and the single-flight session refresher.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hrwatch/internal/model"
)

// Cookie names set by the portal after login.
const (
	CookieAccessToken = "hr_atk"
	CookieXSRF        = "XSRF-TOKEN"
	CookieMappingID   = "hr_mid"
)

// Credential is the set of values every summary request needs. The access
// and XSRF tokens are cross-validated by the portal, so a Credential is only
// ever built as a whole from one cookie snapshot.
type Credential struct {
	AccessToken string
	XSRFToken   string
	MappingID   string
	// ExpiresAt is zero when the access token carries no decodable exp claim.
	ExpiresAt time.Time
}

// Complete reports whether both tokens are present.
func (c Credential) Complete() bool {
	return c.AccessToken != "" && c.XSRFToken != ""
}

// FromCookies extracts a Credential from a cookie snapshot. Missing access
// or XSRF cookies yield a session-expired error; a missing mapping id falls
// back to defaultMappingID.
func FromCookies(cookies []Cookie, defaultMappingID string) (Credential, error) {
	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		if _, seen := byName[c.Name]; !seen {
			byName[c.Name] = c.Value
		}
	}

	var missing []string
	atk, ok := byName[CookieAccessToken]
	if !ok {
		missing = append(missing, CookieAccessToken)
	}
	xsrf, ok := byName[CookieXSRF]
	if !ok {
		missing = append(missing, CookieXSRF)
	}
	if len(missing) > 0 {
		return Credential{}, model.NewError(model.KindSessionExpired, "extract credential",
			fmt.Errorf("required cookies missing: %v", missing))
	}

	mid, ok := byName[CookieMappingID]
	if !ok {
		mid = defaultMappingID
	}

	cred := Credential{
		AccessToken: atk,
		XSRFToken:   xsrf,
		MappingID:   mid,
	}
	if exp, err := DecodeExpiry(atk); err == nil {
		cred.ExpiresAt = exp
	}
	return cred, nil
}

var errNoExpiry = errors.New("token has no exp claim")

// DecodeExpiry reads the exp claim of a signed token without verifying its
// signature; only the portal can verify it.
func DecodeExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}
	return exp.Time, nil
}
