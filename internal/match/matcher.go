// Package match implements the route matcher (C4): mapping a forwarded
// (host, path) pair to at most one rule from the current table.
package match

import (
	"strings"

	"github.com/authava/authgate/internal/rules"
)

// Match iterates table in order and returns the first rule whose host and
// path patterns both match, or ok=false if none does. Ties are resolved by
// table order only; there is no longest-prefix or specificity scoring.
func Match(table rules.Table, host, path string) (rules.Rule, bool) {
	for _, rule := range table.Rules {
		if hostMatches(rule.HostPattern, host) && pathMatches(rule.PathPattern, path) {
			return rule, true
		}
	}
	return rules.Rule{}, false
}

// hostMatches implements literal equality and the single "*.suffix" wildcard
// form. A host equal to the bare suffix does not match: the wildcard must
// consume at least one label.
func hostMatches(pattern, host string) bool {
	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return pattern == host
	}
	if len(host) <= len(suffix) {
		return false
	}
	if !strings.HasSuffix(host, suffix) {
		return false
	}
	return host[len(host)-len(suffix)-1] == '.'
}

// pathMatches implements literal equality and the trailing "*" prefix form.
func pathMatches(pattern, path string) bool {
	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok {
		return pattern == path
	}
	return strings.HasPrefix(path, prefix)
}
