package request

import (
	"path"
	"strings"
)

// Category is the classification of an intercepted request.
type Category string

// Request categories.
const (
	CategoryStaticAsset Category = "static_asset"
	CategoryAPIData     Category = "api_data"
	CategoryDynamic     Category = "dynamic"
)

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// Classifier maps requests to categories using static patterns and API prefixes.
//
// Static patterns take three forms:
//   - "*.css" matches any path with that extension
//   - a pattern ending in "/" matches any path under that prefix
//   - anything else is a path.Match glob, so "/index.html" is an exact match
//
// A static pattern match wins over an API prefix match. Requests matching
// neither are Dynamic, unless the resource-type hint names a static type.
type Classifier struct {
	staticPatterns []string
	apiPrefixes    []string
}

// NewClassifier creates a classifier from the configured pattern lists.
func NewClassifier(staticPatterns, apiPrefixes []string) *Classifier {
	return &Classifier{
		staticPatterns: append([]string(nil), staticPatterns...),
		apiPrefixes:    append([]string(nil), apiPrefixes...),
	}
}

// Classify returns the category for the request. It never fails.
func (c *Classifier) Classify(req Request) Category {
	p := req.Path()

	for _, pattern := range c.staticPatterns {
		if matchStatic(pattern, p) {
			return CategoryStaticAsset
		}
	}

	for _, prefix := range c.apiPrefixes {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return CategoryAPIData
		}
	}

	if req.Hint.IsStatic() {
		return CategoryStaticAsset
	}

	return CategoryDynamic
}

func matchStatic(pattern, p string) bool {
	switch {
	case pattern == "":
		return false
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(p, pattern[1:])
	case strings.HasSuffix(pattern, "/"):
		return strings.HasPrefix(p, pattern)
	default:
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}
}
