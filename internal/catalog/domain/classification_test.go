package domain

import "testing"

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Box 3 ":    "box 3",
		"BOX\t\t3":    "box 3",
		"ÄPFEL-Box":   "äpfel-box",
		"":            "",
		"sku-ABC-001": "sku-abc-001",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVariationKey(t *testing.T) {
	if got := VariationKey("Mystery Box", "Default Title"); got != "mystery box" {
		t.Errorf("default variant should collapse, got %q", got)
	}
	if got := VariationKey("Mystery Box", " Deluxe "); got != "mystery box / deluxe" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestParseClassification(t *testing.T) {
	if c, ok := ParseClassification(" AddOn "); !ok || c != Addon {
		t.Fatalf("expected addon, got %q %v", c, ok)
	}
	if _, ok := ParseClassification("bundle"); ok {
		t.Fatalf("bundle must be rejected")
	}
	if !Ignored.Excluded() || Subscription.Excluded() || Unclassified.Excluded() {
		t.Fatalf("unexpected exclusion rules")
	}
}
