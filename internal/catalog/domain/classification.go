// Package domain holds catalog types shared with the reconstruction engine.
package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Classification decides whether a product variation counts toward a subscriber's sequence.
type Classification string

const (
	// Unclassified variations have been seen but not reviewed yet.
	Unclassified Classification = ""
	Subscription Classification = "subscription"
	Addon        Classification = "addon"
	Ignored      Classification = "ignored"
)

// ParseClassification accepts any casing and rejects unknown values.
func ParseClassification(raw string) (Classification, bool) {
	switch Classification(strings.ToLower(strings.TrimSpace(raw))) {
	case Subscription:
		return Subscription, true
	case Addon:
		return Addon, true
	case Ignored:
		return Ignored, true
	}
	return Unclassified, false
}

// Excluded reports whether line items of this classification never reach the timeline.
func (c Classification) Excluded() bool {
	return c == Addon || c == Ignored
}

// Normalize case-folds s and collapses runs of whitespace, so "  Box 3 " and
// "BOX   3" compare equal.
func Normalize(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(folded, unicode.IsSpace), " ")
}

// VariationKey is the natural key of a (product, variant) pair.
func VariationKey(productName, variantTitle string) string {
	product := Normalize(productName)
	variant := Normalize(variantTitle)
	if variant == "" || variant == "default title" {
		return product
	}
	return product + " / " + variant
}
