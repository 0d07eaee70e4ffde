package texts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetEmbeddedPrompt(t *testing.T) {
	c := NewCatalog("")
	got := c.Get("not_registered")
	if !strings.Contains(got, "not registered") {
		t.Fatalf("unexpected prompt body: %q", got)
	}
}

func TestGetUnknownPrompt(t *testing.T) {
	c := NewCatalog("")
	got := c.Get("no_such_prompt")
	if !strings.Contains(got, "missing prompt") {
		t.Fatalf("unknown prompt should yield a visible placeholder, got %q", got)
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	c := NewCatalog("")
	got := c.Render("usage", map[string]string{
		"used":      "2.00 MB",
		"total":     "10.00 MB",
		"remaining": "8.00 MB",
	})
	if strings.Contains(got, "{") {
		t.Fatalf("unsubstituted placeholder in %q", got)
	}
	if !strings.Contains(got, "2.00 MB") || !strings.Contains(got, "8.00 MB") {
		t.Fatalf("values missing from %q", got)
	}
}

func TestOverrideDirShadowsEmbedded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "support.txt"), []byte("custom support line\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog(dir)
	if got := c.Get("support"); got != "custom support line" {
		t.Fatalf("override not applied: %q", got)
	}
	// prompts without an override still resolve from the embedded copy
	if got := c.Get("sales"); !strings.Contains(got, "sales@pondmobile.com") {
		t.Fatalf("embedded fallback broken: %q", got)
	}
}

func TestInvalidatePicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "support.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog(dir)
	if got := c.Get("support"); got != "v1" {
		t.Fatalf("got %q", got)
	}

	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := c.Get("support"); got != "v1" {
		t.Fatalf("cache should serve v1 until invalidated, got %q", got)
	}
	c.Invalidate()
	if got := c.Get("support"); got != "v2" {
		t.Fatalf("got %q after invalidate", got)
	}
}

func TestWelcomePrefersMainPrompt(t *testing.T) {
	c := NewCatalog("")
	if got := c.Welcome(); !strings.Contains(got, "Welcome") {
		t.Fatalf("welcome = %q", got)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "welcome.txt"), []byte("   \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c = NewCatalog(dir)
	if got := c.Welcome(); !strings.Contains(got, "get started") {
		t.Fatalf("blank welcome should fall back, got %q", got)
	}
}
