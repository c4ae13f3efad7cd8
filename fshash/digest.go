package fshash

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Mode selects how a single file's fingerprint is computed.
type Mode int

const (
	// Full computes a 128-bit non-cryptographic content hash of file
	// bytes; collision probability is negligible for build trees.
	Full Mode = iota
	// Fast digests (mtime, size) only: cheap, but can miss a same-size
	// write that lands within one filesystem timestamp quantum.
	Fast
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "fast"
}

// entryTag is the byte spec §4.1 prescribes when composing a directory
// digest from its member fingerprints.
func (m Mode) entryTag() byte {
	if m == Fast {
		return 0x00
	}
	return 0x01
}

// Digest is a 128-bit fingerprint, used uniformly for both file and
// directory hashes regardless of Mode.
type Digest [16]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the unset digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// hashBytes produces a 128-bit digest from a single in-memory buffer, used
// to compose the final directory digest from its serialized entry list.
func hashBytes(data []byte) Digest {
	var d Digest
	lo := xxhash.Sum64(data)
	hi := xxhash.Sum64(append([]byte{0xA5}, data...))
	binary.BigEndian.PutUint64(d[0:8], lo)
	binary.BigEndian.PutUint64(d[8:16], hi)
	return d
}

// hashReader streams r through two salted xxhash passes to build a 128-bit
// digest without buffering the whole input in memory.
func hashReader(r io.Reader) (Digest, error) {
	h1 := xxhash.New()
	h2 := xxhash.New()
	h2.Write([]byte{0xA5})

	mw := io.MultiWriter(h1, h2)
	if _, err := io.Copy(mw, r); err != nil {
		return Digest{}, err
	}

	var d Digest
	binary.BigEndian.PutUint64(d[0:8], h1.Sum64())
	binary.BigEndian.PutUint64(d[8:16], h2.Sum64())
	return d, nil
}

// fullFileDigest computes the Full-mode content digest of the file at path.
func fullFileDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	return hashReader(f)
}

// fastFileDigest packs (mtime nanoseconds, size) directly into the digest;
// this is the fingerprint itself, not a hash of it, since the tuple is
// already small and exact.
func fastFileDigest(info os.FileInfo) Digest {
	var d Digest
	binary.BigEndian.PutUint64(d[0:8], uint64(info.ModTime().UnixNano()))
	binary.BigEndian.PutUint64(d[8:16], uint64(info.Size()))
	return d
}

// fileFingerprint computes path's fingerprint according to mode.
func fileFingerprint(path string, mode Mode) (Digest, error) {
	if mode == Fast {
		info, err := os.Stat(path)
		if err != nil {
			return Digest{}, err
		}
		return fastFileDigest(info), nil
	}
	return fullFileDigest(path)
}

// composeDirDigest serializes a directory's sorted member fingerprints and
// external symlink targets into one buffer and hashes it, producing a
// digest that changes if any entry's path, tag, or fingerprint changes, or
// if an entry is added, removed, or reordered.
func composeDirDigest(entries []dirEntryFingerprint, externalSymlinkTargets []string) Digest {
	var buf []byte
	for _, e := range entries {
		buf = appendLenPrefixed(buf, []byte(e.relPath))
		buf = append(buf, e.tag)
		buf = append(buf, e.digest[:]...)
	}
	buf = appendUint32(buf, uint32(len(externalSymlinkTargets)))
	for _, target := range externalSymlinkTargets {
		buf = appendLenPrefixed(buf, []byte(target))
	}
	return hashBytes(buf)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendLenPrefixed(buf, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
