// Package gate authorizes candidate URLs against the configured publisher
// whitelist before any outbound request is made. Authorization is a pure
// function over static configuration; a rejection is terminal for the
// scrape attempt that triggered it.
package gate

import (
	"net/url"
	"strings"

	"github.com/healthpulse/registry/internal/models"
)

// Reason classifies why a URL was rejected.
type Reason string

const (
	ReasonMalformedURL    Reason = "malformed_url"
	ReasonInsecureScheme  Reason = "insecure_scheme"
	ReasonUntrustedDomain Reason = "untrusted_domain"
)

// Decision is the outcome of authorizing a URL.
type Decision struct {
	Allowed bool
	Reason  Reason // set only when rejected
	Host    string // normalized host, set when the URL parsed
}

// Gate validates URLs against an allow-list of official publisher domains.
// The allow-list is read-only after construction; configuration reloads
// build a new Gate.
type Gate struct {
	domains []string
}

// New constructs a Gate over the given allow-listed domains. Domains are
// normalized to lowercase without surrounding whitespace.
func New(domains []string) *Gate {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return &Gate{domains: normalized}
}

// Authorize checks whether the URL may be fetched: it must be absolute, use
// https, and its host must match an allow-listed domain exactly or be a
// subdomain of one. No wildcard matching beyond subdomain-of.
func (g *Gate) Authorize(rawURL string) Decision {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return Decision{Allowed: false, Reason: ReasonMalformedURL}
	}

	host := strings.ToLower(parsed.Hostname()) // strips port

	if parsed.Scheme != "https" {
		return Decision{Allowed: false, Reason: ReasonInsecureScheme, Host: host}
	}

	for _, domain := range g.domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return Decision{Allowed: true, Host: host}
		}
	}

	return Decision{Allowed: false, Reason: ReasonUntrustedDomain, Host: host}
}

// EstimateTier assigns an initial scraping tier from the URL shape. This is a
// starting estimate only; dispatch feedback refines it over time.
func EstimateTier(rawURL string) models.Tier {
	lower := strings.ToLower(rawURL)

	if strings.Contains(lower, "/api/") || strings.HasSuffix(lower, ".json") {
		return models.TierStructuredAPI
	}

	for _, ext := range []string{".csv", ".xlsx", ".xls", ".parquet"} {
		if strings.HasSuffix(lower, ext) {
			return models.TierFileDownload
		}
	}

	if strings.HasSuffix(lower, ".pdf") {
		return models.TierDocumentExtraction
	}

	return models.TierMarkupParsing
}
