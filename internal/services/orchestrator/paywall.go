package orchestrator

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// paywallRule rewrites an archival fetch to a mirror host. Only the fetch
// target changes; the canonical URL recorded on the item is untouched.
type paywallRule struct {
	Host   string `yaml:"host"`   // Host suffix to match, e.g. "nytimes.com"
	Prefix string `yaml:"prefix"` // Mirror prefix prepended to the original URL
}

// PaywallRewriter maps known paywalled hosts onto archive mirrors.
type PaywallRewriter struct {
	mu     sync.RWMutex
	rules  []paywallRule
	logger arbor.ILogger
}

// defaultPaywallRules covers hosts commonly behind hard paywalls.
var defaultPaywallRules = []paywallRule{
	{Host: "nytimes.com", Prefix: "https://archive.ph/newest/"},
	{Host: "wsj.com", Prefix: "https://archive.ph/newest/"},
	{Host: "ft.com", Prefix: "https://archive.ph/newest/"},
	{Host: "economist.com", Prefix: "https://archive.ph/newest/"},
	{Host: "bloomberg.com", Prefix: "https://archive.ph/newest/"},
	{Host: "washingtonpost.com", Prefix: "https://archive.ph/newest/"},
}

// NewPaywallRewriter builds a rewriter from the built-in rules plus an
// optional YAML rules file. File rules are appended after the defaults and
// matched first, so a file entry for a default host overrides it.
func NewPaywallRewriter(rulesFile string, logger arbor.ILogger) (*PaywallRewriter, error) {
	r := &PaywallRewriter{
		rules:  append([]paywallRule(nil), defaultPaywallRules...),
		logger: logger,
	}

	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read paywall rules file: %w", err)
		}
		var fileRules []paywallRule
		if err := yaml.Unmarshal(data, &fileRules); err != nil {
			return nil, fmt.Errorf("failed to parse paywall rules file: %w", err)
		}
		// Prepend so file rules win on overlapping hosts.
		r.rules = append(fileRules, r.rules...)
		logger.Info().
			Int("rules", len(fileRules)).
			Str("file", rulesFile).
			Msg("Loaded paywall rewrite rules")
	}

	return r, nil
}

// Rewrite returns the fetch URL for rawURL. When the host matches a rule
// the mirror URL is returned with rewritten=true; otherwise rawURL comes
// back unchanged.
func (r *PaywallRewriter) Rewrite(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL, false
	}

	host := strings.ToLower(parsed.Hostname())

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if hostMatches(host, rule.Host) {
			return rule.Prefix + rawURL, true
		}
	}
	return rawURL, false
}

// hostMatches reports whether host equals rule or is a subdomain of it.
// "www.nytimes.com" matches "nytimes.com"; "notnytimes.com" does not.
func hostMatches(host, rule string) bool {
	rule = strings.ToLower(rule)
	return host == rule || strings.HasSuffix(host, "."+rule)
}
