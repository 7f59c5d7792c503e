package classifier_test

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"urlwarden/internal/domain"
	"urlwarden/internal/services/catalog"
	"urlwarden/internal/services/classifier"
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newClassifier() *classifier.Classifier {
	return classifier.New(catalog.Default()).WithClock(fixedClock)
}

func checkoutFetch() domain.FetchResult {
	body := `<html><head>
<script src="https://www.paypalobjects.com/api/checkout.js"></script>
</head><body><h1>Checkout</h1></body></html>`
	return domain.FetchResult{
		URL:      "https://example.com/checkout",
		FinalURL: "https://example.com/checkout",
		Status:   200,
		Header:   http.Header{"Content-Type": []string{"text/html"}},
		Body:     []byte(body),
		Chain:    []domain.RedirectHop{{Index: 0, URL: "https://example.com/checkout", Status: 200}},
	}
}

func TestPayPalWithoutHSTS(t *testing.T) {
	res := newClassifier().Classify(checkoutFetch())

	if len(res.Gateways) != 1 || res.Gateways[0].Gateway != "paypal" {
		t.Fatalf("expected paypal finding, got %+v", res.Gateways)
	}
	if res.Gateways[0].Confidence != classifier.ConfidenceHigh {
		t.Fatalf("script-src match should be high confidence, got %q", res.Gateways[0].Confidence)
	}
	if res.Security.HSTS {
		t.Fatal("hsts should be false without Strict-Transport-Security")
	}
	if !res.Security.ValidTLS {
		t.Fatal("https final URL should report valid TLS")
	}
	if res.Errored {
		t.Fatal("successful fetch must not be errored")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newClassifier()
	in := checkoutFetch()
	a := c.Classify(in)
	b := c.Classify(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("classification not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestSecurityHeaders(t *testing.T) {
	in := checkoutFetch()
	in.Header = http.Header{
		"Strict-Transport-Security": []string{"max-age=31536000"},
		"Content-Security-Policy":   []string{"default-src 'self'; frame-ancestors 'none'"},
		"X-Xss-Protection":          []string{"1; mode=block"},
		"Set-Cookie":                []string{"sid=abc; Secure; HttpOnly"},
	}
	res := newClassifier().Classify(in)
	sec := res.Security
	if !sec.HSTS || !sec.CSP || !sec.XSSProtection || !sec.SecureCookies || !sec.FrameProtection {
		t.Fatalf("expected all header findings true, got %+v", sec)
	}
}

func TestInsecureCookieFlag(t *testing.T) {
	in := checkoutFetch()
	in.Header.Set("Set-Cookie", "sid=abc; Path=/")
	res := newClassifier().Classify(in)
	if res.Security.SecureCookies {
		t.Fatal("cookie without Secure attribute should flag secure_cookies=false")
	}
}

func TestInsecureForm(t *testing.T) {
	in := checkoutFetch()
	in.Body = []byte(`<html><body><form action="http://pay.example.net/submit"><input name="cc"></form></body></html>`)
	res := newClassifier().Classify(in)
	if !res.Threats.InsecureForm {
		t.Fatal("plaintext form target should flag insecure_form")
	}

	in.Body = []byte(`<html><body><form action="/submit"></form></body></html>`)
	res = newClassifier().Classify(in)
	if res.Threats.InsecureForm {
		t.Fatal("relative form on an https page is not insecure")
	}
}

func TestSuspiciousRedirects(t *testing.T) {
	in := checkoutFetch()
	in.Chain = []domain.RedirectHop{
		{Index: 0, URL: "https://example.com/a", Status: 302},
		{Index: 1, URL: "https://tracker.example.net/b", Status: 302},
		{Index: 2, URL: "https://landing.example.org/c", Status: 200},
	}
	res := newClassifier().Classify(in)
	if res.Threats.SuspiciousRedirects != 2 {
		t.Fatalf("expected 2 cross-site transitions, got %d", res.Threats.SuspiciousRedirects)
	}

	// long same-site chain trips the length threshold
	in.Chain = []domain.RedirectHop{
		{URL: "https://example.com/1", Status: 302},
		{URL: "https://example.com/2", Status: 302},
		{URL: "https://example.com/3", Status: 302},
		{URL: "https://example.com/4", Status: 302},
		{URL: "https://example.com/5", Status: 200},
	}
	res = newClassifier().Classify(in)
	if res.Threats.SuspiciousRedirects != 1 {
		t.Fatalf("expected chain-length flag, got %d", res.Threats.SuspiciousRedirects)
	}
}

func TestThreatPatterns(t *testing.T) {
	in := checkoutFetch()
	in.Body = []byte(`<html><body>
Please verify your account immediately.
<script>eval(unescape('%70%61%79'))</script>
<script src="https://openfpcdn.io/fingerprintjs/v4.js"></script>
</body></html>`)
	res := newClassifier().Classify(in)
	if !res.Threats.Phishing {
		t.Fatal("phishing wording not detected")
	}
	if !res.Threats.Malware {
		t.Fatal("eval(unescape) not detected")
	}
	if !res.Threats.Fingerprinting {
		t.Fatal("fingerprinting script not detected")
	}
}

func TestFailedFetchIsFullyUnscored(t *testing.T) {
	in := domain.FetchResult{
		URL:    "https://down.example.com/",
		Failed: true,
		Error:  "fetch timed out",
	}
	res := newClassifier().Classify(in)
	if !res.Errored || res.FetchError != "fetch timed out" {
		t.Fatalf("expected errored result carrying fetch error, got %+v", res)
	}
	if len(res.Gateways) != 0 || res.Threats != (domain.ThreatFindings{}) || res.Security != (domain.SecurityFindings{}) {
		t.Fatal("failed fetch must not fabricate findings")
	}
}
