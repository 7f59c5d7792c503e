package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"urlwarden/internal/services/catalog"
)

func TestDefaultCompiles(t *testing.T) {
	cat := catalog.Default()
	if cat.Version() == "" {
		t.Fatal("expected a catalog version")
	}
	gateways := cat.Rules(catalog.KindGateway)
	if len(gateways) == 0 {
		t.Fatal("expected built-in gateway rules")
	}
	found := false
	for _, r := range gateways {
		if r.Name == "paypal" && r.Match("https://www.paypalobjects.com/js/checkout.js") {
			found = true
		}
	}
	if !found {
		t.Fatal("paypal rule missing or not matching")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := `version: local-2
rules:
  - name: testpay
    kind: gateway
    pattern: 'pay\.test\.example'
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := catalog.Default()
	builtins := len(cat.Rules(catalog.KindGateway))
	if err := cat.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Version() != "local-2" {
		t.Fatalf("expected overlay version, got %q", cat.Version())
	}
	if got := len(cat.Rules(catalog.KindGateway)); got != builtins+1 {
		t.Fatalf("expected %d gateway rules, got %d", builtins+1, got)
	}
}

func TestLoadBadPatternLeavesCatalogUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := `rules:
  - name: broken
    kind: gateway
    pattern: '(['
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := catalog.Default()
	before := cat.Version()
	if err := cat.Load(path); err == nil {
		t.Fatal("expected compile error")
	}
	if cat.Version() != before {
		t.Fatal("catalog mutated by failed load")
	}
}
