// Package fshash computes content fingerprints for files and directory
// trees, caching them behind a filesystem watch so repeated lookups across
// a long-lived build process don't re-walk or re-read unchanged trees.
package fshash

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"code.cloudfoundry.org/anubis/internal/anubiserr"
)

const maxCacheRetries = 3

// FsTreeHasher is the shared, concurrency-safe collaborator that answers
// "what is the current fingerprint of this file or directory" (spec §4.1).
// One instance is meant to live for the duration of a build invocation.
type FsTreeHasher struct {
	mode Mode

	mu         sync.Mutex
	generation uint64

	fileCache map[string]fileCacheEntry
	dirCache  map[string]dirCacheEntry

	watching    map[string]bool
	uncacheable map[string]bool

	watcher *fsnotify.Watcher
	closeCh chan struct{}
}

// New starts a filesystem watcher and returns a ready-to-use hasher. The
// caller must call Close when done to release the fsnotify handle.
func New(mode Mode) (*FsTreeHasher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, anubiserr.Wrap(anubiserr.KindFilesystem, err, "starting filesystem watcher")
	}
	h := &FsTreeHasher{
		mode:        mode,
		fileCache:   make(map[string]fileCacheEntry),
		dirCache:    make(map[string]dirCacheEntry),
		watching:    make(map[string]bool),
		uncacheable: make(map[string]bool),
		watcher:     w,
		closeCh:     make(chan struct{}),
	}
	go h.watchLoop()
	return h, nil
}

// Close stops the background watch loop and releases the fsnotify handle.
func (h *FsTreeHasher) Close() error {
	close(h.closeCh)
	return h.watcher.Close()
}

// Invalidate manually evicts any cached digest for path, and for anything
// nested under or above it, regardless of whether a filesystem event has
// been observed yet.
func (h *FsTreeHasher) Invalidate(path string) {
	canon, err := canonicalize(path)
	if err != nil {
		canon = filepath.Clean(path)
	}
	h.mu.Lock()
	h.invalidateLocked(canon)
	h.mu.Unlock()
}

// InvalidateAll drops every cached digest and bumps the generation counter,
// so any fingerprint computed from this point on is recomputed from disk.
func (h *FsTreeHasher) InvalidateAll() {
	h.mu.Lock()
	h.invalidateAllLocked()
	h.mu.Unlock()
}

func (h *FsTreeHasher) invalidateAllLocked() {
	h.generation++
	h.fileCache = make(map[string]fileCacheEntry)
	h.dirCache = make(map[string]dirCacheEntry)
}

// canonicalize resolves path to an absolute, symlink-free form so that two
// different spellings of the same file share one cache entry.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// HashFile returns path's current fingerprint, serving a cached value when
// the generation counter shows nothing has changed since it was computed.
func (h *FsTreeHasher) HashFile(path string) (Digest, error) {
	canon, err := canonicalize(path)
	if err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "resolving %s", path)
	}
	if net, err := isNetworkFilesystem(canon); err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "statting filesystem of %s", canon)
	} else if net {
		return Digest{}, anubiserr.New(anubiserr.KindFilesystem,
			"refusing to hash %s: resides on a network filesystem", canon)
	}

	dir := filepath.Dir(canon)
	h.mu.Lock()
	h.ensureWatchLocked(dir)
	h.mu.Unlock()

	for attempt := 0; attempt < maxCacheRetries; attempt++ {
		h.mu.Lock()
		gen := h.generation
		if !h.uncacheable[dir] {
			if entry, ok := h.fileCache[canon]; ok && entry.generation == gen {
				h.mu.Unlock()
				return entry.digest, nil
			}
		}
		h.mu.Unlock()

		digest, err := fileFingerprint(canon, h.mode)
		if err != nil {
			return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "hashing %s", canon)
		}

		h.mu.Lock()
		if h.generation != gen {
			// Something changed mid-read; loop around and recompute against
			// the new generation rather than cache a digest that may
			// already be stale.
			h.mu.Unlock()
			continue
		}
		h.fileCache[canon] = fileCacheEntry{digest: digest, generation: gen}
		h.mu.Unlock()
		return digest, nil
	}

	return Digest{}, anubiserr.New(anubiserr.KindFilesystem,
		"hashing %s: filesystem kept changing underneath %d retries", canon, maxCacheRetries)
}

type dirEntryFingerprint struct {
	relPath string
	tag     byte
	digest  Digest
}

// HashDir returns root's current fingerprint: a deterministic composition
// of every regular file's fingerprint under it (following directory
// symlinks, including ones that escape root, into their targets), plus the
// target paths of any file symlinks that point outside the tree (spec
// §4.1 directory-hash contract).
func (h *FsTreeHasher) HashDir(root string) (Digest, error) {
	canon, err := canonicalize(root)
	if err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "resolving %s", root)
	}
	if net, err := isNetworkFilesystem(canon); err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "statting filesystem of %s", canon)
	} else if net {
		return Digest{}, anubiserr.New(anubiserr.KindFilesystem,
			"refusing to hash %s: resides on a network filesystem", canon)
	}

	rootInfo, err := os.Stat(canon)
	if err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "statting %s", canon)
	}
	identity, hasIdent := identityOf(rootInfo)

	for attempt := 0; attempt < maxCacheRetries; attempt++ {
		h.mu.Lock()
		gen := h.generation
		if !h.uncacheable[canon] {
			if entry, ok := h.dirCache[canon]; ok && entry.generation == gen &&
				(!hasIdent || !entry.hasIdent || entry.identity == identity) {
				h.mu.Unlock()
				return entry.digest, nil
			}
		}
		h.mu.Unlock()

		digest, err := h.walkAndHash(canon)
		if err != nil {
			return Digest{}, err
		}

		h.mu.Lock()
		if h.generation != gen {
			h.mu.Unlock()
			continue
		}
		h.dirCache[canon] = dirCacheEntry{digest: digest, generation: gen, identity: identity, hasIdent: hasIdent}
		h.mu.Unlock()
		return digest, nil
	}

	return Digest{}, anubiserr.New(anubiserr.KindFilesystem,
		"hashing %s: filesystem kept changing underneath %d retries", canon, maxCacheRetries)
}

// walkAndHash recursively watches every directory under root and
// fingerprints every regular file. A symlink to a directory, whether it
// stays under root or escapes it, is followed and its contents folded into
// the digest at the symlink's position — a change anywhere under an
// externally-linked directory must change root's digest (spec §4.1 steps
// 2-4). A symlink to a regular file is not followed: its target path is
// recorded in externalSymlinks if it escapes root, so a caller that cares
// can hash that file separately, but the file's content does not affect
// this digest.
func (h *FsTreeHasher) walkAndHash(root string) (Digest, error) {
	var entries []dirEntryFingerprint
	var externalSymlinks []string
	visitedDirs := make(map[string]bool)

	var walkDir func(dir, rel string) error
	walkDir = func(dir, rel string) error {
		canonDir, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return err
		}
		if visitedDirs[canonDir] {
			return nil
		}
		visitedDirs[canonDir] = true

		h.mu.Lock()
		h.ensureWatchLocked(dir)
		h.mu.Unlock()

		children, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, child := range children {
			path := filepath.Join(dir, child.Name())
			childRel := filepath.Join(rel, child.Name())

			info, err := child.Info()
			if err != nil {
				return err
			}

			if info.Mode()&os.ModeSymlink != 0 {
				target, readErr := filepath.EvalSymlinks(path)
				if readErr != nil {
					return readErr
				}
				targetInfo, statErr := os.Stat(target)
				if statErr != nil {
					return statErr
				}
				if targetInfo.IsDir() {
					if err := walkDir(target, childRel); err != nil {
						return err
					}
					continue
				}
				if !isUnder(root, target) {
					externalSymlinks = append(externalSymlinks, target)
				}
				continue
			}

			if info.IsDir() {
				if err := walkDir(path, childRel); err != nil {
					return err
				}
				continue
			}

			digest, ferr := fileFingerprint(path, h.mode)
			if ferr != nil {
				return ferr
			}
			entries = append(entries, dirEntryFingerprint{relPath: childRel, tag: h.mode.entryTag(), digest: digest})
		}
		return nil
	}

	if err := walkDir(root, ""); err != nil {
		return Digest{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "walking %s", root)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })
	sort.Strings(externalSymlinks)

	return composeDirDigest(entries, externalSymlinks), nil
}
