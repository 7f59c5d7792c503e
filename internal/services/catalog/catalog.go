package catalog

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"urlwarden/internal/domain"
)

// Rule kinds.
const (
	KindGateway     = "gateway"
	KindPhishing    = "phishing"
	KindMalware     = "malware"
	KindFingerprint = "fingerprint"
)

// Rule is one declarative detection signature. Patterns are case-insensitive
// regular expressions evaluated against the page body and, for gateway and
// fingerprint rules, against script src references.
type Rule struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Match reports whether the rule pattern matches s.
func (r Rule) Match(s string) bool { return r.re.MatchString(s) }

// Catalog is an ordered, compiled rule set. Rule order is stable so the
// classifier output is deterministic for a given catalog version.
type Catalog struct {
	version string
	rules   []Rule
}

type catalogFile struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Version identifies the rule set stamped into every AnalysisResult.
func (c *Catalog) Version() string { return c.version }

// Rules returns the compiled rules of one kind, in catalog order.
func (c *Catalog) Rules(kind string) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Default returns the built-in rule set.
func Default() *Catalog {
	c := &Catalog{version: "builtin-1", rules: defaultRules()}
	if err := c.compile(); err != nil {
		// Built-in patterns are constants; a failure here is a programming
		// error caught by catalog tests.
		panic(err)
	}
	return c
}

// Load overlays a YAML rule file on top of the current set. A file that does
// not parse or compile leaves the catalog unchanged.
func (c *Catalog) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("catalog: parse %s: %w: %v", path, domain.ErrCatalogCorrupt, err)
	}
	next := &Catalog{version: file.Version, rules: append(append([]Rule(nil), c.rules...), file.Rules...)}
	if next.version == "" {
		next.version = c.version + "+local"
	}
	if err := next.compile(); err != nil {
		return fmt.Errorf("catalog: %s: %w: %v", path, domain.ErrCatalogCorrupt, err)
	}
	*c = *next
	return nil
}

func (c *Catalog) compile() error {
	for i := range c.rules {
		r := &c.rules[i]
		if r.Name == "" || r.Pattern == "" {
			return fmt.Errorf("rule %d: name and pattern are required", i)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.re = re
	}
	return nil
}

func defaultRules() []Rule {
	return []Rule{
		// Payment gateways: script hosts first, generic body mentions last.
		{Name: "paypal", Kind: KindGateway, Pattern: `paypal\.com|paypalobjects\.com|\bpaypal\b`},
		{Name: "stripe", Kind: KindGateway, Pattern: `js\.stripe\.com|checkout\.stripe\.com|\bstripe\b`},
		{Name: "square", Kind: KindGateway, Pattern: `squareup\.com|web\.squarecdn\.com`},
		{Name: "braintree", Kind: KindGateway, Pattern: `braintreegateway\.com|braintree-api\.com|\bbraintree\b`},
		{Name: "razorpay", Kind: KindGateway, Pattern: `checkout\.razorpay\.com|\brazorpay\b`},
		{Name: "authorize_net", Kind: KindGateway, Pattern: `authorize\.net|acceptjs`},
		{Name: "klarna", Kind: KindGateway, Pattern: `klarna\.com|klarnaservices|\bklarna\b`},
		{Name: "adyen", Kind: KindGateway, Pattern: `checkoutshopper-live\.adyen\.com|\badyen\b`},

		// Phishing wording seen on credential-harvesting pages.
		{Name: "account_verify", Kind: KindPhishing, Pattern: `verify\s+your\s+(account|identity)`},
		{Name: "account_suspended", Kind: KindPhishing, Pattern: `account\s+(has\s+been\s+)?(suspended|locked|limited)`},
		{Name: "unusual_activity", Kind: KindPhishing, Pattern: `unusual\s+(sign[- ]?in\s+)?activity`},
		{Name: "confirm_password", Kind: KindPhishing, Pattern: `(confirm|re-?enter)\s+your\s+password`},

		// Obfuscation and drive-by tells.
		{Name: "eval_unescape", Kind: KindMalware, Pattern: `eval\s*\(\s*unescape\s*\(`},
		{Name: "document_write_unescape", Kind: KindMalware, Pattern: `document\.write\s*\(\s*unescape\s*\(`},
		{Name: "hidden_iframe", Kind: KindMalware, Pattern: `<iframe[^>]+(visibility\s*:\s*hidden|display\s*:\s*none|width\s*=\s*["']?0)`},

		// Browser fingerprinting libraries and techniques.
		{Name: "fingerprintjs", Kind: KindFingerprint, Pattern: `fingerprintjs|fpjs\.io|openfpcdn\.io`},
		{Name: "canvas_probe", Kind: KindFingerprint, Pattern: `canvas\.toDataURL|getImageData\s*\(.*\)\s*\.data`},
		{Name: "plugin_enum", Kind: KindFingerprint, Pattern: `navigator\.plugins\s*\[|navigator\.mimeTypes\s*\[`},
	}
}
