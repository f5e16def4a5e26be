// Package search implements query parsing, ranking, and execution
// against the persistence layer (spec §4.I), plus the URL
// normalization shared with the indexing pipeline and change tracker.
package search

import (
	"net/url"
	"strings"
)

// trackingParams is the fixed set of cross-site tracking query
// parameters dropped during URL normalization. The source spec leaves
// this enumeration open; this is the resolved, fixed list.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
	"_ga":          {},
	"_gl":          {},
	"ref":          {},
	"referrer":     {},
	"icid":         {},
	"cmp":          {},
	"wbdisable":    {},
}

// NormalizeURL computes the deterministic canonical form spec §3 names
// normalized_url_group: lowercase host, strip fragment, drop tracking
// parameters, normalize trailing slash. It is pure and idempotent
// (invariant I6 / the §8 idempotence property): NormalizeURL(u) ==
// NormalizeURL(NormalizeURL(u)).
//
// A string that fails to parse as a URL is returned unchanged (lower-
// cased and trimmed), so callers never need a separate error path for
// this best-effort grouping key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	u.Scheme = strings.ToLower(u.Scheme)

	if u.RawQuery != "" {
		values := u.Query()
		for key := range values {
			if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
				values.Del(key)
			}
		}
		u.RawQuery = values.Encode()
	}

	path := u.Path
	if path == "" {
		path = "/"
	} else if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	u.Path = path

	return u.String()
}

// URLVariants returns a small set of scheme/www. variants of raw,
// normalized, for the search engine's URL-lookup mode (spec §4.I
// "trying a small set of scheme/www. variants").
func URLVariants(raw string) []string {
	raw = strings.TrimSpace(raw)
	bases := []string{raw}
	if !strings.Contains(raw, "://") {
		bases = []string{"https://" + raw, "http://" + raw}
	}

	seen := map[string]struct{}{}
	var out []string
	for _, b := range bases {
		for _, variant := range []string{b, withWWW(b), withoutWWW(b)} {
			n := NormalizeURL(variant)
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func withWWW(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if strings.HasPrefix(u.Host, "www.") {
		return raw
	}
	u.Host = "www." + u.Host
	return u.String()
}

func withoutWWW(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = strings.TrimPrefix(u.Host, "www.")
	return u.String()
}
