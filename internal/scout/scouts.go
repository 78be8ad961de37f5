package scout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Scout names.
const (
	Blog        = "blog"
	News        = "news"
	LinkedIn    = "linkedin"
	Social      = "social"
	Portfolio   = "portfolio"
	Testimonial = "testimonial"
)

var socialHosts = []string{"twitter.com", "x.com", "facebook.com"}

var triggerHints = map[lead.TriggerType]string{
	lead.TriggerHiring:           `(hiring OR "join our team" OR careers)`,
	lead.TriggerFunding:          `(raises OR funding OR "series a" OR "series b" OR investment)`,
	lead.TriggerLeadershipChange: `(appoints OR "new ceo" OR "joins as" OR promoted)`,
	lead.TriggerAward:            `(award OR wins OR recognized)`,
	lead.TriggerExpansion:        `(expands OR "new office" OR opens OR launch)`,
	lead.TriggerPartnership:      `(partnership OR partners OR teams up)`,
	lead.TriggerProductLaunch:    `(launches OR introduces OR unveils)`,
}

func quoted(s string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(s), `"`, "") + `"`
}

func keywordGroup(keywords []string, limit int) string {
	if len(keywords) == 0 {
		return ""
	}
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			k = quoted(k)
		}
		terms = append(terms, k)
	}
	if len(terms) == 0 {
		return ""
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

func join(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func triggerGroups(s lead.ClientStrategy) []string {
	types := s.TriggerTypes
	if len(types) == 0 {
		types = lead.AllTriggerTypes()
	}
	groups := make([]string, 0, len(types))
	for _, t := range types {
		if hint, ok := triggerHints[t]; ok {
			groups = append(groups, hint)
		}
	}
	return groups
}

func blogSpec() spec {
	return spec{
		name: Blog,
		queries: func(c lead.Company, s lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			kw := keywordGroup(s.Keywords, cfg.MaxKeywords)
			if d := CleanDomain(c.BlogURL); d != "" {
				return []lead.SearchQuery{{Query: join("site:"+d, kw), Num: cfg.ResultsPerQ, Recency: cfg.Recency}}
			}
			if d := CleanDomain(c.Domain); d != "" {
				return []lead.SearchQuery{
					{Query: join("site:"+d, "(blog OR news OR announcement OR press)", kw), Num: cfg.ResultsPerQ, Recency: cfg.Recency},
				}
			}
			return []lead.SearchQuery{{Query: join(quoted(c.Name), "blog", kw), Num: cfg.ResultsPerQ, Recency: cfg.Recency}}
		},
		accept: func(r lead.SearchResult, c lead.Company) bool {
			host := Host(r.URL)
			if d := CleanDomain(c.BlogURL); d != "" {
				return HostMatches(host, d)
			}
			if d := CleanDomain(c.Domain); d != "" {
				return HostMatches(host, d)
			}
			return true
		},
	}
}

func newsSpec() spec {
	return spec{
		name: News,
		queries: func(c lead.Company, s lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			groups := triggerGroups(s)
			out := make([]lead.SearchQuery, 0, 2)
			half := (len(groups) + 1) / 2
			for _, chunk := range [][]string{groups[:half], groups[half:]} {
				if len(chunk) == 0 {
					continue
				}
				out = append(out, lead.SearchQuery{
					Query:   join(quoted(c.Name), "("+strings.Join(chunk, " OR ")+")"),
					Num:     cfg.ResultsPerQ,
					Recency: cfg.Recency,
					News:    true,
				})
			}
			return out
		},
	}
}

func linkedInSpec() spec {
	return spec{
		name: LinkedIn,
		queries: func(c lead.Company, s lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			kw := keywordGroup(s.Keywords, cfg.MaxKeywords)
			return []lead.SearchQuery{{
				Query:   join("site:linkedin.com/posts", quoted(c.Name), kw),
				Num:     cfg.ResultsPerQ,
				Recency: cfg.Recency,
			}}
		},
		accept: func(r lead.SearchResult, _ lead.Company) bool {
			return HostMatches(Host(r.URL), "linkedin.com")
		},
		headless:    true,
		snippetOnly: true,
	}
}

func socialSpec() spec {
	return spec{
		name: Social,
		queries: func(c lead.Company, s lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			sites := make([]string, 0, len(socialHosts))
			for _, h := range socialHosts {
				sites = append(sites, "site:"+h)
			}
			return []lead.SearchQuery{{
				Query:   join("("+strings.Join(sites, " OR ")+")", quoted(c.Name), keywordGroup(s.Keywords, cfg.MaxKeywords)),
				Num:     cfg.ResultsPerQ,
				Recency: cfg.Recency,
			}}
		},
		accept: func(r lead.SearchResult, _ lead.Company) bool {
			host := Host(r.URL)
			for _, h := range socialHosts {
				if HostMatches(host, h) {
					return true
				}
			}
			return false
		},
		headless:    true,
		snippetOnly: true,
	}
}

func portfolioSpec() spec {
	return spec{
		name: Portfolio,
		queries: func(c lead.Company, _ lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			terms := `("case study" OR portfolio OR "our clients" OR "featured work" OR "success story")`
			if d := CleanDomain(c.Domain); d != "" {
				return []lead.SearchQuery{{Query: join("site:"+d, terms), Num: cfg.ResultsPerQ}}
			}
			return []lead.SearchQuery{{Query: join(quoted(c.Name), terms), Num: cfg.ResultsPerQ}}
		},
	}
}

func testimonialSpec() spec {
	return spec{
		name: Testimonial,
		queries: func(c lead.Company, _ lead.ClientStrategy, cfg Config) []lead.SearchQuery {
			return []lead.SearchQuery{{
				Query:   join(quoted(c.Name), `(testimonial OR review OR "customer story" OR "what our customers say")`),
				Num:     cfg.ResultsPerQ,
				Recency: cfg.Recency,
			}}
		},
	}
}

// Registry holds the configured scouts by name.
type Registry struct {
	scouts map[string]lead.Scout
}

// NewRegistry builds every scout over the shared deps.
func NewRegistry(cfg Config, deps Deps) *Registry {
	r := &Registry{scouts: make(map[string]lead.Scout)}
	for _, sp := range []spec{blogSpec(), newsSpec(), linkedInSpec(), socialSpec(), portfolioSpec(), testimonialSpec()} {
		r.scouts[sp.name] = newSearchScout(sp, cfg, deps)
	}
	return r
}

// Names lists registered scouts in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scouts))
	for n := range r.scouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// For returns the scouts enabled by the strategy; all of them when none are named.
// Unknown names are reported as an error alongside the known scouts.
func (r *Registry) For(strategy lead.ClientStrategy) ([]lead.Scout, error) {
	if len(strategy.Scouts) == 0 {
		out := make([]lead.Scout, 0, len(r.scouts))
		for _, n := range r.Names() {
			out = append(out, r.scouts[n])
		}
		return out, nil
	}
	var (
		out     []lead.Scout
		unknown []string
		seen    = make(map[string]struct{})
	)
	for _, name := range strategy.Scouts {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		s, ok := r.scouts[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		return out, fmt.Errorf("unknown scouts for client %s: %s", strategy.ClientID, strings.Join(unknown, ", "))
	}
	return out, nil
}
