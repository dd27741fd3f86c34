//go:build !lindex_debug

package lindex

// debugAssert is a no-op outside debug builds (see debug.go).
func debugAssert(bool, string) {}
