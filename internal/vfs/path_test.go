package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"duskftpd/internal/ftperr"
)

func TestNormalizeCollapsesDotDot(t *testing.T) {
	cases := map[string]string{
		"":                "/",
		"/":                "/",
		"/a/b/../c":        "/a/c",
		"a/b":              "/a/b",
		"/a/../../../etc":  "/etc",
		"/a//b///c":        "/a/b/c",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinRelativeAndAbsolute(t *testing.T) {
	if got := Join("/incoming", "sub"); got != "/incoming/sub" {
		t.Fatalf("got %q", got)
	}
	if got := Join("/incoming", "/elsewhere"); got != "/elsewhere" {
		t.Fatalf("got %q", got)
	}
	if got := Join("/incoming/deep", ".."); got != "/incoming" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	if _, err := fs.Resolve("/../../etc/passwd"); err == nil {
		t.Fatalf("expected escape to be rejected")
	} else if !ftperr.Is(err, ftperr.PathEscape) {
		t.Fatalf("expected PathEscape, got %v", err)
	}
}

func TestResolveStaysRooted(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	real, err := fs.Resolve("/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if real != filepath.Join(root, "a", "b") {
		t.Fatalf("got %q", real)
	}
}

func TestMkdirWritesOwnerSidecar(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	if err := fs.Mkdir("/incoming", 42, 7); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	owner, err := ReadOwner(root, "incoming")
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if owner.UID != 42 || owner.GID != 7 {
		t.Fatalf("unexpected owner: %+v", owner)
	}
}

func TestRenameMovesOwnerSidecar(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	if err := os.WriteFile(filepath.Join(root, "file.bin"), []byte("data"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := WriteOwner(root, "file.bin", OwnerRecord{UID: 1, GID: 1}); err != nil {
		t.Fatalf("write owner: %v", err)
	}
	if err := fs.Rename("/file.bin", "/renamed.bin"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	owner, err := ReadOwner(root, "renamed.bin")
	if err != nil {
		t.Fatalf("read owner after rename: %v", err)
	}
	if owner.UID != 1 {
		t.Fatalf("owner not carried across rename: %+v", owner)
	}
	if _, err := os.Stat(filepath.Join(root, "file.bin")); !os.IsNotExist(err) {
		t.Fatalf("expected old path gone")
	}
}

func TestListReflectsOwnerSidecarAndSkipsIt(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteOwner(root, "a.txt", OwnerRecord{UID: 1}); err != nil {
		t.Fatal(err)
	}
	entries, err := fs.List("/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("expected only a.txt, got %+v", entries)
	}
	if entries[0].Owner.UID != 1 {
		t.Fatalf("expected owner to carry through listing, got %+v", entries[0].Owner)
	}
}

func TestStatUnknownOwnerForUntrackedEntry(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	if err := os.WriteFile(filepath.Join(root, "preexisting.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := fs.Stat("/preexisting.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if entry.Owner != UnknownOwner {
		t.Fatalf("expected unknown owner for untracked file, got %+v", entry.Owner)
	}
}
