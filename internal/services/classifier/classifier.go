package classifier

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"urlwarden/internal/domain"
	"urlwarden/internal/services/catalog"
	"urlwarden/internal/urlutil"
)

// More hops than this in a chain is suspicious on its own.
const suspiciousChainHops = 3

// Confidence qualifiers for gateway findings.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// Classifier applies the signature catalog to a FetchResult. Classify is a
// pure function of the result, the catalog version, and the injected clock:
// identical inputs always yield an identical AnalysisResult.
type Classifier struct {
	catalog *catalog.Catalog
	nowFn   func() time.Time
}

func New(cat *catalog.Catalog) *Classifier {
	return &Classifier{catalog: cat, nowFn: time.Now}
}

// WithClock fixes the analysis timestamp source. Used by tests.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.nowFn = now
	return c
}

// Classify scores a fetched response. A failed fetch yields a fully errored
// result carrying the original fetch error; it never attempts partial scoring.
func (c *Classifier) Classify(res domain.FetchResult) domain.AnalysisResult {
	out := domain.AnalysisResult{
		URL:            res.URL,
		CatalogVersion: c.catalog.Version(),
		AnalyzedAt:     c.nowFn().UTC(),
	}
	if res.Failed {
		out.Errored = true
		out.FetchError = res.Error
		return out
	}

	page := parsePage(res)

	out.Gateways = c.gateways(page)
	out.Security = c.security(res, page)
	out.Threats = c.threats(res, page)
	return out
}

// page is the pre-extracted view of a response the rules run against.
type page struct {
	body       string // lowercased body
	scriptSrcs []string
	formURLs   []*url.URL // resolved form submission targets
	finalURL   *url.URL
}

func parsePage(res domain.FetchResult) page {
	p := page{body: strings.ToLower(string(res.Body))}
	p.finalURL, _ = url.Parse(res.FinalURL)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		// rules degrade to body-only matching
		return p
	}
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && src != "" {
			p.scriptSrcs = append(p.scriptSrcs, strings.ToLower(src))
		}
	})
	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		action, _ := sel.Attr("action")
		target := p.finalURL
		if action != "" && p.finalURL != nil {
			if ref, err := url.Parse(action); err == nil {
				target = p.finalURL.ResolveReference(ref)
			}
		}
		if target != nil {
			p.formURLs = append(p.formURLs, target)
		}
	})
	return p
}

func (c *Classifier) gateways(p page) []domain.GatewayFinding {
	var out []domain.GatewayFinding
	for _, rule := range c.catalog.Rules(catalog.KindGateway) {
		confidence := ""
		for _, src := range p.scriptSrcs {
			if rule.Match(src) {
				confidence = ConfidenceHigh
				break
			}
		}
		if confidence == "" && rule.Match(p.body) {
			confidence = ConfidenceLow
		}
		if confidence != "" {
			out = append(out, domain.GatewayFinding{Gateway: rule.Name, Confidence: confidence})
		}
	}
	return out
}

func (c *Classifier) security(res domain.FetchResult, p page) domain.SecurityFindings {
	csp := res.Header.Get("Content-Security-Policy")
	return domain.SecurityFindings{
		ValidTLS:        p.finalURL != nil && p.finalURL.Scheme == "https",
		HSTS:            res.Header.Get("Strict-Transport-Security") != "",
		CSP:             csp != "",
		SecureCookies:   secureCookies(res.Header),
		FrameProtection: res.Header.Get("X-Frame-Options") != "" || strings.Contains(csp, "frame-ancestors"),
		XSSProtection:   res.Header.Get("X-Xss-Protection") != "",
	}
}

// secureCookies is true when every Set-Cookie carries the Secure attribute.
// A response that sets no cookies has nothing insecure to flag.
func secureCookies(h http.Header) bool {
	for _, cookie := range h.Values("Set-Cookie") {
		if !strings.Contains(strings.ToLower(cookie), "secure") {
			return false
		}
	}
	return true
}

func (c *Classifier) threats(res domain.FetchResult, p page) domain.ThreatFindings {
	t := domain.ThreatFindings{
		SuspiciousRedirects: suspiciousRedirects(res.Chain),
	}
	for _, rule := range c.catalog.Rules(catalog.KindPhishing) {
		if rule.Match(p.body) {
			t.Phishing = true
			break
		}
	}
	for _, rule := range c.catalog.Rules(catalog.KindMalware) {
		if rule.Match(p.body) {
			t.Malware = true
			break
		}
	}
	for _, rule := range c.catalog.Rules(catalog.KindFingerprint) {
		if rule.Match(p.body) {
			t.Fingerprinting = true
			break
		}
		for _, src := range p.scriptSrcs {
			if rule.Match(src) {
				t.Fingerprinting = true
				break
			}
		}
		if t.Fingerprinting {
			break
		}
	}
	for _, target := range p.formURLs {
		if target.Scheme == "http" {
			t.InsecureForm = true
			break
		}
	}
	return t
}

// suspiciousRedirects counts registrable-domain crossings in the chain and
// adds one when the chain exceeds suspiciousChainHops redirects.
func suspiciousRedirects(chain []domain.RedirectHop) int {
	n := 0
	for i := 1; i < len(chain); i++ {
		prev, errA := url.Parse(chain[i-1].URL)
		cur, errB := url.Parse(chain[i].URL)
		if errA != nil || errB != nil {
			continue
		}
		if !urlutil.SameSite(prev, cur) {
			n++
		}
	}
	if len(chain) > suspiciousChainHops+1 {
		n++
	}
	return n
}
