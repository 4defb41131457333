package util

import "strings"

// StorageKey isolates an entity id under namespace: "<ns>:<id>".
func StorageKey(namespace, entityID string) string {
	return Prefix(namespace) + entityID
}

// Prefix is the listing prefix owned by namespace.
func Prefix(namespace string) string { return namespace + ":" }

// EntityID reverses StorageKey. ok is false for keys outside namespace.
func EntityID(namespace, storageKey string) (string, bool) {
	id, ok := strings.CutPrefix(storageKey, Prefix(namespace))
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Dedup returns ids without duplicates or empty strings, keeping first-seen order.
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
