package routing

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/stayview/reviewgate/internal/ratelimit"
)

// Rule maps a path prefix plus HTTP methods to a policy tier.
type Rule struct {
	Prefix  string
	Methods map[string]struct{}
	Tier    ratelimit.Tier
}

// Table classifies requests into policy tiers. Classification is a pure
// function of method and path: the most specific (longest) matching prefix
// wins, and anything unmatched falls to the default tier.
type Table struct {
	rules       []Rule
	defaultTier ratelimit.Tier
}

func NewTable(defaultTier ratelimit.Tier, rules []Rule) *Table {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for i := range sorted {
		sorted[i].Prefix = normalizePrefix(sorted[i].Prefix)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{rules: sorted, defaultTier: defaultTier}
}

func (t *Table) DefaultTier() ratelimit.Tier { return t.defaultTier }

func (t *Table) Rules() []Rule { return t.rules }

// Classify resolves the tier for a request. The second return reports
// whether an explicit rule matched; unmatched requests get the default
// tier rather than slipping through unlimited.
func (t *Table) Classify(method, path string) (ratelimit.Tier, bool) {
	m := strings.ToUpper(method)
	for _, rule := range t.rules {
		if len(rule.Methods) > 0 {
			if _, ok := rule.Methods[m]; !ok {
				continue
			}
		}
		if path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			return rule.Tier, true
		}
	}
	return t.defaultTier, false
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		p = "/"
	}
	return p
}

// --- context helpers ---
type ctxKey int

const keyTier ctxKey = 0

func WithTier(r *http.Request, tier ratelimit.Tier) *http.Request {
	ctx := context.WithValue(r.Context(), keyTier, tier)
	return r.WithContext(ctx)
}

func TierFrom(r *http.Request) (ratelimit.Tier, bool) {
	v := r.Context().Value(keyTier)
	if v == nil {
		return "", false
	}
	tier, ok := v.(ratelimit.Tier)
	return tier, ok
}
