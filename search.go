package availcache

import (
	"net/url"
	"strings"
)

// SearchURLFunc builds the deterministic fallback reference for a platform
// when no provider-authoritative page is known.
type SearchURLFunc func(p Platform, displayName string) string

// StoreSearchURL points at the platform's storefront search for displayName.
func StoreSearchURL(p Platform, displayName string) string {
	q := strings.TrimSpace(displayName)
	switch p {
	case Nintendo:
		return "https://www.nintendo.com/search/?q=" + url.QueryEscape(q)
	case PlayStation:
		return "https://store.playstation.com/search/" + url.PathEscape(q)
	case Xbox:
		return "https://www.xbox.com/search?q=" + url.QueryEscape(q)
	default:
		return ""
	}
}

// fallbackAttributes is every platform Unknown with search references.
func fallbackAttributes(search SearchURLFunc, displayName string) map[Platform]Attribute {
	out := make(map[Platform]Attribute, len(Platforms))
	for _, p := range Platforms {
		out[p] = Attribute{Status: StatusUnknown, URL: search(p, displayName)}
	}
	return out
}

// renameEntry switches the entry to a new display name. Only Unknown
// attributes get a regenerated search URL; provider-sourced URLs are kept.
func renameEntry(e Entry, displayName string, search SearchURLFunc) Entry {
	out := e.clone()
	out.DisplayName = displayName
	for _, p := range Platforms {
		a := out.Attribute(p)
		if a.Status == StatusUnknown {
			a.URL = search(p, displayName)
		}
		out.Attributes[p] = a
	}
	return out
}
