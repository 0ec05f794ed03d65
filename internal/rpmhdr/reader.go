// Package rpmhdr reads the file tables of an RPM package header.
package rpmhdr

import (
	"fmt"

	"github.com/cavaliergopher/rpm"

	"github.com/zmanda/manifest-restore/internal/manifest"
)

// Header tag ids.
const (
	tagName          = 1000
	tagFileSizes     = 1028
	tagFileModes     = 1030
	tagFileMtimes    = 1034
	tagFileDigests   = 1035
	tagFileLinkTos   = 1036
	tagFileFlags     = 1037
	tagFileUserName  = 1039
	tagFileGroupName = 1040
	tagDirIndexes    = 1116
	tagBaseNames     = 1117
	tagDirNames      = 1118
	tagFileDigestAlg = 5011
)

// Reader implements manifest.Reader for RPM files.
type Reader struct{}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read opens the RPM at path and extracts the file tables.
func (r *Reader) Read(path string) (*manifest.Header, error) {
	pkg, err := rpm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rpm: %w", err)
	}
	return FromPackage(pkg), nil
}

// FromPackage extracts the file tables from an already-parsed package.
func FromPackage(pkg *rpm.Package) *manifest.Header {
	h := &pkg.Header
	return &manifest.Header{
		Name:       pkg.Name(),
		BaseNames:  stringTag(h, tagBaseNames),
		DirIndexes: intTag(h, tagDirIndexes),
		DirNames:   stringTag(h, tagDirNames),
		FileFlags:  intTag(h, tagFileFlags),
		FileModes:  intTag(h, tagFileModes),
		FileSizes:  intTag(h, tagFileSizes),
		LinkTos:    stringTag(h, tagFileLinkTos),
		UserNames:  stringTag(h, tagFileUserName),
		GroupNames: stringTag(h, tagFileGroupName),
		Mtimes:     intTag(h, tagFileMtimes),
		Digests:    stringTag(h, tagFileDigests),
		DigestAlgo: int64At(h, tagFileDigestAlg),
	}
}

func stringTag(h *rpm.Header, id int) []string {
	tag := h.GetTag(id)
	if tag == nil {
		return nil
	}
	return tag.StringSlice()
}

func intTag(h *rpm.Header, id int) []int64 {
	tag := h.GetTag(id)
	if tag == nil {
		return nil
	}
	return tag.Int64Slice()
}

func int64At(h *rpm.Header, id int) int64 {
	if s := intTag(h, id); len(s) > 0 {
		return s[0]
	}
	return 0
}
