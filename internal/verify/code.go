// Package verify compares the declared state of a manifest entry with the
// observed state of its live path.
//
// The comparison yields a Code with one field per attribute. Codes are only
// rendered to their fixed-width string form for reporting.
package verify

import (
	"strings"

	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
)

// Placeholder marks a slot with no difference.
const Placeholder = '.'

// DigestState is the state of the digest slot.
type DigestState int

const (
	// DigestNone means the digest slot does not apply.
	DigestNone DigestState = iota
	// DigestUnverified means the content needs external verification.
	DigestUnverified
	// DigestVerified means an external check confirmed the content.
	DigestVerified
	// DigestMismatch means an external check rejected the content.
	DigestMismatch
)

// transientSuffix marks files whose mtime is expected to move.
const transientSuffix = ".log"

// Code records which attributes of one file differ from the manifest.
type Code struct {
	Size   bool
	Mode   bool
	Digest DigestState
	Link   bool
	UID    bool
	GID    bool
	Mtime  bool
}

// Actionable reports whether the code carries any difference beyond an
// unverified digest.
func (c Code) Actionable() bool {
	return c.Size || c.Mode || c.Digest == DigestMismatch || c.Link || c.UID || c.GID || c.Mtime
}

// NeedsOwnership reports whether owner or group differ.
func (c Code) NeedsOwnership() bool {
	return c.UID || c.GID
}

// String renders the code as seven characters: size, mode, digest, link,
// uid, gid, mtime.
func (c Code) String() string {
	var b strings.Builder
	b.Grow(7)
	mark(&b, c.Size, 'S')
	mark(&b, c.Mode, 'M')
	switch c.Digest {
	case DigestUnverified:
		b.WriteByte('?')
	case DigestMismatch:
		b.WriteByte('5')
	default:
		b.WriteByte(Placeholder)
	}
	mark(&b, c.Link, 'L')
	mark(&b, c.UID, 'U')
	mark(&b, c.GID, 'G')
	mark(&b, c.Mtime, 'T')
	return b.String()
}

func mark(b *strings.Builder, set bool, ch byte) {
	if set {
		b.WriteByte(ch)
		return
	}
	b.WriteByte(Placeholder)
}

// Encode compares e against the observed stat st. Every slot is evaluated
// independently.
func Encode(e *manifest.Entry, st *fsops.FileStat) Code {
	rec := e.Record()
	installed := e.IsInstalled()
	regular := e.IsRegular()
	sizeMatches := rec.Size == st.Size

	var c Code
	c.Size = regular && installed && !sizeMatches
	c.Mode = !e.IsSymlink() && installed && e.Permission() != st.Perm()
	if regular && installed && sizeMatches {
		c.Digest = DigestUnverified
	}
	if e.IsSymlink() && installed {
		c.Link = linkDiffers(e)
	}
	c.UID = uint32(e.UID()) != st.UID
	c.GID = uint32(e.GID()) != st.GID
	c.Mtime = regular && installed && sizeMatches &&
		!strings.HasSuffix(e.Name(), transientSuffix) &&
		rec.Mtime != st.Mtime.Unix()
	return c
}

// linkDiffers reports a link difference when the live type matches the
// declared symlink but the target does not. An unreadable link counts as
// differing.
func linkDiffers(e *manifest.Entry) bool {
	ok, err := e.LinkStateMatches()
	if err != nil || !ok {
		return false
	}
	target, err := e.Readlink()
	if err != nil {
		return true
	}
	return target != e.LinkTarget()
}
