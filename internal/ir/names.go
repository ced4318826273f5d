package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName normalizes an interpreter identifier for comparison.
//
// The interpreter stores identifiers NFKC-normalized, so a filter typed by a
// user (function or attribute name) is normalized the same way before it is
// compared with names read from the target.
func NormalizeName(name string) string {
	return norm.NFKC.String(strings.TrimSpace(name))
}

// NamesEqual compares two identifiers after normalization.
func NamesEqual(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
