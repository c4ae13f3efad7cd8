package fshash

import (
	"path/filepath"
)

// ensureWatchLocked registers a filesystem watch on dir if one isn't
// already active. Registration failure marks dir uncacheable forever
// (spec §4.1): every future lookup under dir recomputes rather than risk
// serving a stale digest the watcher can no longer invalidate.
func (h *FsTreeHasher) ensureWatchLocked(dir string) {
	if h.watching[dir] || h.uncacheable[dir] {
		return
	}
	if err := h.watcher.Add(dir); err != nil {
		h.uncacheable[dir] = true
		return
	}
	h.watching[dir] = true
}

// watchLoop drains fsnotify events for the lifetime of the hasher,
// invalidating the written/created/removed/renamed path and its parent
// directory (whose composed digest depends on it).
func (h *FsTreeHasher) watchLoop() {
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.mu.Lock()
			h.invalidateLocked(ev.Name)
			h.mu.Unlock()

		case _, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			// A watch error doesn't name a specific path; the conservative
			// response is to drop every cached entry so nothing stale
			// survives an fsnotify backend hiccup.
			h.mu.Lock()
			h.invalidateAllLocked()
			h.mu.Unlock()

		case <-h.closeCh:
			return
		}
	}
}

func ancestorOf(path string) string {
	parent := filepath.Dir(path)
	if parent == path {
		return ""
	}
	return parent
}

const pathSeparator = filepath.Separator
