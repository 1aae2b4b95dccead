// Package vfs virtualizes the site's filesystem: every path a session
// sees is a normalized, absolute, UNIX-style virtual path rooted at "/";
// the real path is sitepath+virtual and is never exposed to clients.
// Grounded on spec.md section 4.A and on the chroot-style path handling
// the teacher's ClientSession.resolvePath/getFullSystemPath performed
// ad hoc inline (OmkarMahajan07-HPE_Project/Ftpserver/ftp_server1.go).
package vfs

import (
	"path"
	"strings"

	"duskftpd/internal/ftperr"
)

// FS roots all operations at a real filesystem directory (sitepath).
type FS struct {
	siteRoot string
}

// New returns an FS rooted at siteRoot, which must be an absolute real path.
func New(siteRoot string) *FS {
	return &FS{siteRoot: strings.TrimRight(siteRoot, "/")}
}

// Normalize cleans a virtual path: collapses "." and "..", removes
// doubled slashes, and always returns an absolute ("/"-rooted) path.
// It never allows the result to climb above "/" — a leading run of
// ".." components is simply absorbed, exactly as path.Clean already
// does for a path forced absolute first.
func Normalize(virtual string) string {
	if virtual == "" {
		virtual = "/"
	}
	if !strings.HasPrefix(virtual, "/") {
		virtual = "/" + virtual
	}
	return path.Clean(virtual)
}

// Join resolves userInput (which may be absolute or relative) against
// cwd to produce a normalized virtual path.
func Join(cwd, userInput string) string {
	if userInput == "" {
		return Normalize(cwd)
	}
	if strings.HasPrefix(userInput, "/") {
		return Normalize(userInput)
	}
	return Normalize(path.Join(cwd, userInput))
}

// Resolve maps a virtual path to its real filesystem path. It fails
// with ftperr.PathEscape if the path, read from "/", climbs above "/"
// before normalization (e.g. "/../etc"), or if the real path would not
// stay under the site root. Join and Normalize clamp such paths at "/",
// so their output never fails the first check.
func (fs *FS) Resolve(virtual string) (string, error) {
	if rel := path.Clean(strings.TrimLeft(virtual, "/")); rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ftperr.NewPathEscape(virtual)
	}
	clean := Normalize(virtual)
	real := path.Join(fs.siteRoot, clean)
	if real != fs.siteRoot && !strings.HasPrefix(real, fs.siteRoot+"/") {
		return "", ftperr.NewPathEscape(virtual)
	}
	return real, nil
}

// SiteRoot returns the real filesystem path nothing outside of is addressable.
func (fs *FS) SiteRoot() string { return fs.siteRoot }
