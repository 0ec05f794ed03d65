package engine

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmanda/manifest-restore/internal/fsops"
	"github.com/zmanda/manifest-restore/internal/manifest"
	"github.com/zmanda/manifest-restore/internal/verify"
)

var appDirs = []string{"/opt/app/", "/opt/app/bin/", "/etc/app/"}

func addOwned(m *fsops.MemFS, path string, perm uint32, size int64) *fsops.MemNode {
	n := m.AddFile(path, perm, size)
	n.UID, n.GID = 500, 500
	n.Mtime = time.Unix(mtimeT, 0)
	return n
}

func TestReconciler_CleanStateReportsNothing(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 1, name: "x", mode: 0o100755, size: 100},
		fileSpec{dir: 2, name: "x.conf", mode: 0o100640, size: 12, flags: manifest.FlagConfig},
	)
	mfs := fsops.NewMemFS()
	addOwned(mfs, "/opt/app/bin/x", 0o755, 100)
	addOwned(mfs, "/etc/app/x.conf", 0o640, 12)

	var logs bytes.Buffer
	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

	require.Len(t, report.Results, 2)
	assert.Equal(t, "..?....", report.Results[0].Code.String())
	assert.Empty(t, report.Lines())
	assert.Empty(t, mfs.Log)

	var out bytes.Buffer
	require.NoError(t, report.Write(&out))
	assert.Empty(t, out.String())
}

func TestReconciler_RepairsModeAndOwnership(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 1, name: "x", mode: 0o100755, size: 100})
	mfs := fsops.NewMemFS()
	node := addOwned(mfs, "/opt/app/bin/x", 0o644, 100)
	node.UID = 0

	rec := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{}))
	report := rec.Run(context.Background())

	require.Len(t, report.Results, 1)
	code := report.Results[0].Code
	assert.True(t, code.Mode)
	assert.True(t, code.UID)
	assert.Equal(t, ".M?.U..", code.String())
	assert.Equal(t, []string{"chown /opt/app/bin/x", "chmod /opt/app/bin/x"}, mfs.Log)

	assert.Equal(t, fsops.TypeRegular|0o755, node.Mode)
	assert.Equal(t, uint32(500), node.UID)

	var out bytes.Buffer
	require.NoError(t, report.Write(&out))
	assert.Equal(t, ".M?.U..   /opt/app/bin/x\n", out.String())

	// A second pass over the repaired tree has nothing to say or do.
	again := rec.Run(context.Background())
	assert.Empty(t, again.Lines())
	assert.Len(t, mfs.Log, 2)
}

func TestReconciler_OwnershipBeforeModeKeepsSetuid(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 1, name: "suid", mode: 0o104755, size: 10})
	mfs := fsops.NewMemFS()
	node := addOwned(mfs, "/opt/app/bin/suid", 0o755, 10)
	node.UID = 0

	New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	assert.Equal(t, []string{"chown /opt/app/bin/suid", "chmod /opt/app/bin/suid"}, mfs.Log)
	assert.Equal(t, fsops.TypeRegular|0o4755, node.Mode)
}

func TestReconciler_ChownAloneRestoresSetidBits(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 1, name: "suid", mode: 0o104755, size: 10})
	mfs := fsops.NewMemFS()
	node := addOwned(mfs, "/opt/app/bin/suid", 0o4755, 10)
	node.GID = 0

	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	assert.Equal(t, "..?..G.", report.Results[0].Code.String())
	assert.Equal(t, fsops.TypeRegular|0o4755, node.Mode)
}

func TestReconciler_UnprivilegedOnlyReports(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 1, name: "x", mode: 0o100755, size: 100})
	mfs := fsops.NewMemFS()
	node := addOwned(mfs, "/opt/app/bin/x", 0o644, 100)
	node.UID = 0

	report := New(model, mfs, nil, Options{}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	require.Len(t, report.Lines(), 1)
	assert.Equal(t, ".M?.U..", report.Lines()[0].Code)
	assert.Empty(t, mfs.Log)
	assert.Equal(t, fsops.TypeRegular|0o644, node.Mode)
}

func TestReconciler_PrecreatesGhostFile(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 0, name: "state", mode: 0o100600, size: 0, flags: manifest.FlagGhost})
	mfs := fsops.NewMemFS()
	mfs.AddDir("/opt/app", 0o755)

	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	assert.Empty(t, report.Results)
	assert.Equal(t, []string{"create /opt/app/state", "chown /opt/app/state", "chmod /opt/app/state"}, mfs.Log)
	node := mfs.Node("/opt/app/state")
	require.NotNil(t, node)
	assert.Equal(t, fsops.TypeRegular|0o600, node.Mode)
	assert.Equal(t, uint32(500), node.UID)
	assert.Equal(t, uint32(500), node.GID)
}

func TestReconciler_DirectoryBatchReuse(t *testing.T) {
	var files []fileSpec
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		files = append(files, fileSpec{dir: 1, name: name, mode: 0o100755, size: 1})
	}
	for _, name := range []string{"f", "g", "h"} {
		files = append(files, fileSpec{dir: 2, name: name, mode: 0o100644, size: 1})
	}
	model := newModel(t, appDirs, files...)

	mfs := fsops.NewMemFS()
	for _, f := range files {
		addOwned(mfs, appDirs[f.dir]+f.name, uint32(f.mode)&0o7777, 1)
	}

	report := New(model, mfs, nil, Options{}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	assert.Len(t, report.Results, 8)
	assert.Equal(t, 2, mfs.Opened)
	assert.Equal(t, 2, mfs.Closed)
}

func TestReconciler_UnopenableDirectoryWarnsOnce(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 1, name: "a", mode: 0o100755, size: 1},
		fileSpec{dir: 1, name: "b", mode: 0o100755, size: 1},
		fileSpec{dir: 1, name: "c", mode: 0o100755, size: 1},
		fileSpec{dir: 2, name: "x.conf", mode: 0o100640, size: 1},
	)
	mfs := fsops.NewMemFS()
	addOwned(mfs, "/etc/app/x.conf", 0o640, 1)

	var logs bytes.Buffer
	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

	assert.Len(t, decodeLogs(t, &logs).with("status", "d-error"), 1)
	assert.Empty(t, decodeLogs(t, &logs).with("status", "missing"))
	require.Len(t, report.Results, 1)
	assert.Equal(t, "/etc/app/x.conf", report.Results[0].Path)
	assert.Equal(t, mfs.Opened, mfs.Closed)
}

func TestReconciler_MissingFiles(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 0, name: "bin", mode: 0o40750},
		fileSpec{dir: 0, name: "current", mode: 0o120777, link: "bin/x", owner: "root", group: "root"},
		fileSpec{dir: 0, name: "data", mode: 0o100644, size: 5},
		fileSpec{dir: 0, name: "optional", mode: 0o100644, size: 5, flags: manifest.FlagMissingOK},
	)

	t.Run("privileged creates symlinks and directories", func(t *testing.T) {
		mfs := fsops.NewMemFS()
		mfs.AddDir("/opt/app", 0o755)

		var logs bytes.Buffer
		report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

		assert.Empty(t, report.Results)
		dir := mfs.Node("/opt/app/bin")
		require.NotNil(t, dir)
		assert.Equal(t, fsops.TypeDir|0o750, dir.Mode)
		assert.Equal(t, uint32(500), dir.UID)

		link := mfs.Node("/opt/app/current")
		require.NotNil(t, link)
		assert.Equal(t, "bin/x", link.Target)

		events := decodeLogs(t, &logs)
		assert.Len(t, events.with("status", "new-sym"), 1)
		missing := events.with("status", "missing")
		require.Len(t, missing, 1)
		assert.Equal(t, "/opt/app/data", missing[0]["path"])
	})

	t.Run("unprivileged only warns for installed files", func(t *testing.T) {
		mfs := fsops.NewMemFS()
		mfs.AddDir("/opt/app", 0o755)

		var logs bytes.Buffer
		New(model, mfs, nil, Options{}, bufLogger(&logs)).Run(context.Background())

		assert.Empty(t, mfs.Log)
		// bin, current and data are installed; optional is missing-ok.
		events := decodeLogs(t, &logs)
		assert.Len(t, events.with("status", "missing"), 3)
		assert.Empty(t, events.with("path", "/opt/app/optional"))
	})
}

func TestReconciler_StatErrors(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 0, name: "locked", mode: 0o100644, size: 1},
		fileSpec{dir: 0, name: "link", mode: 0o120777, link: "locked"},
	)
	mfs := fsops.NewMemFS()
	addOwned(mfs, "/opt/app/locked", 0o644, 1)
	mfs.AddSymlink("/opt/app/link", "elsewhere")
	mfs.FailOn("lstat", "/opt/app/locked", fs.ErrPermission)
	mfs.FailOn("lstat", "/opt/app/link", fs.ErrPermission)

	var logs bytes.Buffer
	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

	assert.Empty(t, report.Results)
	events := decodeLogs(t, &logs)
	assert.Len(t, events.with("status", "error").with("path", "/opt/app/locked"), 1)
	assert.Len(t, events.with("status", "io-sym").with("path", "/opt/app/link"), 1)
	assert.Equal(t, "locked", mfs.Node("/opt/app/link").Target)
}

func TestReconciler_RepairFailureStopsOnlyThatEntry(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 1, name: "a", mode: 0o100755, size: 1},
		fileSpec{dir: 1, name: "b", mode: 0o100755, size: 1},
	)
	mfs := fsops.NewMemFS()
	a := addOwned(mfs, "/opt/app/bin/a", 0o644, 1)
	a.UID = 0
	b := addOwned(mfs, "/opt/app/bin/b", 0o644, 1)
	b.UID = 0
	mfs.FailOn("chown", "/opt/app/bin/a", fs.ErrPermission)

	var logs bytes.Buffer
	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

	assert.Len(t, report.Lines(), 2)
	assert.Equal(t, fsops.TypeRegular|0o644, a.Mode)
	assert.Equal(t, fsops.TypeRegular|0o755, b.Mode)
	assert.Equal(t, []string{"chown /opt/app/bin/b", "chmod /opt/app/bin/b"}, mfs.Log)
	assert.Len(t, decodeLogs(t, &logs).with("status", "failed").with("path", "/opt/app/bin/a"), 1)
}

func TestReconciler_RestoresMtimeKeepingAtime(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 1, name: "x", mode: 0o100755, size: 1})
	mfs := fsops.NewMemFS()
	node := addOwned(mfs, "/opt/app/bin/x", 0o755, 1)
	atime := time.Unix(1600000000, 0)
	node.Atime = atime
	node.Mtime = time.Unix(mtimeT+60, 0)

	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	assert.Equal(t, "..?...T", report.Results[0].Code.String())
	assert.Equal(t, []string{"utimes /opt/app/bin/x"}, mfs.Log)
	assert.Equal(t, atime, node.Atime)
	assert.Equal(t, int64(mtimeT), node.Mtime.Unix())
}

func TestReconciler_RepointsSymlink(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 0, name: "current", mode: 0o120777, link: "bin/x"})
	mfs := fsops.NewMemFS()
	link := mfs.AddSymlink("/opt/app/current", "bin/old")
	link.UID, link.GID = 500, 500

	var logs bytes.Buffer
	rec := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs))
	report := rec.Run(context.Background())

	assert.Equal(t, "...L...", report.Results[0].Code.String())
	assert.Equal(t, []string{"unlink /opt/app/current", "symlink /opt/app/current", "chown /opt/app/current"}, mfs.Log)
	assert.Equal(t, "bin/x", mfs.Node("/opt/app/current").Target)
	assert.Len(t, decodeLogs(t, &logs).with("status", "fix-sym"), 1)

	// The new link carries the declared owner, so the next pass is clean.
	node := mfs.Node("/opt/app/current")
	assert.Equal(t, uint32(500), node.UID)
	assert.Equal(t, uint32(500), node.GID)
	assert.Empty(t, rec.Run(context.Background()).Lines())
}

func TestReconciler_CreatedSymlinksGetDeclaredOwner(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 0, name: "missing", mode: 0o120777, link: "bin/x"},
		fileSpec{dir: 0, name: "unreadable", mode: 0o120777, link: "bin/x"},
	)
	mfs := fsops.NewMemFS()
	mfs.AddDir("/opt/app", 0o755)
	mfs.AddSymlink("/opt/app/unreadable", "bin/x")
	mfs.FailOn("lstat", "/opt/app/unreadable", fs.ErrPermission)

	New(model, mfs, nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	for _, p := range []string{"/opt/app/missing", "/opt/app/unreadable"} {
		node := mfs.Node(p)
		require.NotNil(t, node, p)
		assert.Equal(t, uint32(500), node.UID, p)
		assert.Equal(t, uint32(500), node.GID, p)
	}
}

func TestReconciler_LeavesModeOfPlantedSymlink(t *testing.T) {
	model := newModel(t, appDirs, fileSpec{dir: 0, name: "x", mode: 0o100755, size: 1})
	mfs := fsops.NewMemFS()
	victim := addOwned(mfs, "/opt/app/victim", 0o600, 1)
	link := mfs.AddSymlink("/opt/app/x", "victim")
	link.UID, link.GID = 500, 500

	var logs bytes.Buffer
	report := New(model, mfs, nil, Options{Privileged: true}, bufLogger(&logs)).Run(context.Background())

	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Code.Mode)
	assert.Empty(t, mfs.Log)
	assert.Equal(t, fsops.TypeRegular|0o600, victim.Mode)
	assert.Len(t, decodeLogs(t, &logs).with("status", "type").with("path", "/opt/app/x"), 1)
}

func TestReconciler_LeavesModeOfPlantedSymlinkRealFS(t *testing.T) {
	root := t.TempDir()
	victim := filepath.Join(root, "victim")
	require.NoError(t, os.WriteFile(victim, nil, 0o600))
	require.NoError(t, os.Symlink("victim", filepath.Join(root, "x")))

	model := newModel(t, []string{root + "/"},
		fileSpec{dir: 0, name: "x", mode: 0o100755, size: 0, owner: "self", group: "self"},
	)

	report := New(model, fsops.NewRealFS(), nil, Options{Privileged: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Code.Mode)
	info, err := os.Stat(victim)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestReconciler_VerifyDigests(t *testing.T) {
	model := newModel(t, appDirs,
		fileSpec{dir: 1, name: "good", mode: 0o100755, size: 1, digest: "aa"},
		fileSpec{dir: 1, name: "bad", mode: 0o100755, size: 1, digest: "bb"},
		fileSpec{dir: 1, name: "short", mode: 0o100755, size: 2, digest: "cc"},
	)
	mfs := fsops.NewMemFS()
	addOwned(mfs, "/opt/app/bin/good", 0o755, 1)
	addOwned(mfs, "/opt/app/bin/bad", 0o755, 1)
	addOwned(mfs, "/opt/app/bin/short", 0o755, 1)

	v := &fakeVerifier{matches: map[string]bool{"/opt/app/bin/good": true}}
	report := New(model, mfs, v, Options{VerifyDigests: true}, bufLogger(&bytes.Buffer{})).Run(context.Background())

	require.Len(t, report.Results, 3)
	assert.Equal(t, verify.DigestVerified, report.Results[0].Code.Digest)
	assert.Equal(t, "..5....", report.Results[1].Code.String())
	assert.Equal(t, "S......", report.Results[2].Code.String())
	// Size mismatches never reach the verifier.
	assert.Equal(t, []string{"/opt/app/bin/good", "/opt/app/bin/bad"}, v.calls)

	lines := report.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "/opt/app/bin/bad", lines[0].Path)
}

func TestReport_Write(t *testing.T) {
	report := &Report{Results: []Result{
		{Path: "/etc/app/x.conf", Code: verify.Code{Mtime: true, Digest: verify.DigestUnverified}, Class: ClassConfig},
		{Path: "/opt/app/quiet", Code: verify.Code{Digest: verify.DigestUnverified}},
		{Path: "/var/app/state", Code: verify.Code{UID: true}, Class: ClassNotInstalled},
		{Path: "/opt/app/bin/x", Code: verify.Code{Size: true}, Class: ClassNormal},
	}}

	var out bytes.Buffer
	require.NoError(t, report.Write(&out))
	assert.Equal(t,
		"..?...T c /etc/app/x.conf\n"+
			"....U.. g /var/app/state\n"+
			"S......   /opt/app/bin/x\n",
		out.String())

	lines := report.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, Line{Code: "..?...T", Class: "config", Path: "/etc/app/x.conf"}, lines[0])
	assert.Equal(t, "not-installed", lines[1].Class)
}
