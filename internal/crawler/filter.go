package crawler

import "regexp"

// matchesPatterns reports whether rawURL passes the include/exclude regex
// sets. Exclude wins over include; a non-empty include set requires at
// least one match.
func matchesPatterns(rawURL string, p discoveryPattern) bool {
	for _, pat := range p.exclude {
		if re, err := regexp.Compile(pat); err == nil && re.MatchString(rawURL) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, pat := range p.include {
		if re, err := regexp.Compile(pat); err == nil && re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// dedupeRecords removes duplicate normalized URLs, keeping the first seen.
func dedupeRecords(records []URLRecord) []URLRecord {
	seen := make(map[string]bool, len(records))
	out := make([]URLRecord, 0, len(records))
	for _, r := range records {
		norm, err := NormalizeURL(r.URL)
		if err != nil {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		r.URL = norm
		out = append(out, r)
	}
	return out
}
