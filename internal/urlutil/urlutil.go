package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"urlwarden/internal/domain"
)

// Normalize returns the canonical string form of a URL used as the cache and
// storage key: lowercased scheme/host, default port stripped, fragment
// dropped, trailing slash normalized. Only absolute http(s) URLs are valid.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", domain.ErrMalformedURL
	}
	if !u.IsAbs() || u.Host == "" {
		return "", domain.ErrMalformedURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", domain.ErrMalformedURL
	}
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Fragment = ""
	u.RawFragment = ""
	switch {
	case u.Path == "":
		u.Path = "/"
	case u.Path != "/":
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// RegistrableDomain returns the eTLD+1 for a host, falling back to the host
// itself for IPs and single-label names.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// SameSite reports whether two URLs share a registrable domain.
func SameSite(a, b *url.URL) bool {
	return RegistrableDomain(a.Hostname()) == RegistrableDomain(b.Hostname())
}
