package util

import (
	"sort"
	"strings"
)

// NormalizeAddress trims and lowercases an address for keying and matching.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizedSet returns the sorted, de-duplicated, normalized form of
// addresses with blanks removed.
func NormalizedSet(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := NormalizeAddress(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UniqueOriginal de-duplicates addresses by normalized form, keeping the
// first spelling seen. Order follows first appearance.
func UniqueOriginal(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		n := strings.ToLower(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, a)
	}
	return out
}
