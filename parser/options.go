package parser

import "regexp"

// KeyMatcher matches source keys for the ignore/accept filters.
type KeyMatcher interface {
	MatchKey(key string) bool
}

type literalMatcher string

func (m literalMatcher) MatchKey(key string) bool { return string(m) == key }

type regexpMatcher struct{ re *regexp.Regexp }

func (m regexpMatcher) MatchKey(key string) bool { return m.re.MatchString(key) }

// Literal returns a matcher that matches key by string equality.
func Literal(key string) KeyMatcher { return literalMatcher(key) }

// Regexp returns a matcher that matches keys against re.
func Regexp(re *regexp.Regexp) KeyMatcher { return regexpMatcher{re: re} }

// Options control parsing.
type Options struct {
	// IgnoreKeys drops matching source keys from the query.
	IgnoreKeys []KeyMatcher

	// AcceptKeys overrides IgnoreKeys and the built-in key set for
	// matching source keys.
	AcceptKeys []KeyMatcher

	// IgnoreBuiltInKeys drops source keys that collide with ambient
	// method names every value carries (see builtinKeySet). NewOptions
	// enables it; a zero Options does not.
	IgnoreBuiltInKeys bool
}

// NewOptions returns the default options: no key filters, built-in keys
// ignored.
func NewOptions() *Options {
	return &Options{IgnoreBuiltInKeys: true}
}

// keepKey applies the accept/ignore/built-in filter chain to a source key.
func (o *Options) keepKey(key string) bool {
	for _, m := range o.AcceptKeys {
		if m.MatchKey(key) {
			return true
		}
	}
	for _, m := range o.IgnoreKeys {
		if m.MatchKey(key) {
			return false
		}
	}
	if o.IgnoreBuiltInKeys {
		if _, ok := builtinKeySet()[key]; ok {
			return false
		}
	}
	return true
}
