package fshash

import "strings"

// fileCacheEntry pairs a stored fingerprint with the generation counter
// value in effect when it was computed; a cache hit is valid only if the
// counter hasn't moved since.
type fileCacheEntry struct {
	digest     Digest
	generation uint64
}

// dirCacheEntry additionally records the directory's filesystem identity
// (when available) so a cache hit also confirms the path still names the
// same physical directory, not one recreated at the same name.
type dirCacheEntry struct {
	digest     Digest
	generation uint64
	identity   fsIdentity
	hasIdent   bool
}

// invalidateLocked bumps the generation counter and evicts any cache entry
// whose path equals or is nested under target, plus every ancestor
// directory of target (their composed digests depend on target's
// fingerprint). Callers must hold h.mu.
func (h *FsTreeHasher) invalidateLocked(target string) {
	h.generation++

	for p := range h.fileCache {
		if p == target || isUnder(target, p) || isUnder(p, target) {
			delete(h.fileCache, p)
		}
	}
	for p := range h.dirCache {
		if p == target || isUnder(target, p) || isUnder(p, target) {
			delete(h.dirCache, p)
		}
	}
	for p := ancestorOf(target); p != ""; p = ancestorOf(p) {
		delete(h.dirCache, p)
	}
}

// isUnder reports whether child is a path nested inside parent.
func isUnder(parent, child string) bool {
	if parent == child {
		return false
	}
	return strings.HasPrefix(child, parent+string(pathSeparator))
}
