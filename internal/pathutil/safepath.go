// Package pathutil holds slash-separated path checks shared by the manifest
// walker and the request router.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasSegment reports whether any segment of p is in names.
func HasSegment(p string, names map[string]struct{}) bool {
	for _, seg := range strings.Split(p, "/") {
		if _, ok := names[seg]; ok {
			return true
		}
	}
	return false
}

// IsHidden reports whether p or any of its segments begins with ".".
func IsHidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
