package vfs

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"duskftpd/internal/ftperr"
)

// Entry describes one directory listing row, combining os.FileInfo with
// the owner sidecar and the virtual path clients address it by.
type Entry struct {
	Name    string
	Virtual string
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    os.FileMode
	Owner   OwnerRecord
}

// List returns the entries of the directory at virtual; sort order is
// left to the caller (LIST/MLSD formatting decides presentation).
func (fs *FS) List(virtual string) ([]Entry, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftperr.NewNotFound(virtual)
		}
		return nil, ftperr.NewIOFailure(virtual, err)
	}
	sc, err := readSidecar(real)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.Name() == sidecarFilename {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		owner, ok := sc.Entries[de.Name()]
		if !ok {
			owner = UnknownOwner
		}
		out = append(out, Entry{
			Name:    de.Name(),
			Virtual: Normalize(virtual + "/" + de.Name()),
			Size:    info.Size(),
			IsDir:   de.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
			Owner:   owner,
		})
	}
	return out, nil
}

// Stat returns the Entry for a single virtual path.
func (fs *FS) Stat(virtual string) (Entry, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ftperr.NewNotFound(virtual)
		}
		return Entry{}, ftperr.NewIOFailure(virtual, err)
	}
	owner, err := ReadOwner(filepath.Dir(real), filepath.Base(real))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:    filepath.Base(real),
		Virtual: Normalize(virtual),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
		Owner:   owner,
	}, nil
}

// Mkdir creates the directory at virtual and records its ownership in
// the parent directory's sidecar.
func (fs *FS) Mkdir(virtual string, uid, gid int64) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if err := os.Mkdir(real, 0o755); err != nil {
		if os.IsExist(err) {
			return ftperr.NewAlreadyExists(virtual)
		}
		return ftperr.NewIOFailure(virtual, err)
	}
	return WriteOwner(filepath.Dir(real), filepath.Base(real), OwnerRecord{UID: uid, GID: gid})
}

// Rmdir removes an empty directory and its ownership entry.
func (fs *FS) Rmdir(virtual string) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil {
		if os.IsNotExist(err) {
			return ftperr.NewNotFound(virtual)
		}
		return ftperr.NewIOFailure(virtual, err)
	}
	if err := os.Remove(sidecarPath(real)); err != nil && !os.IsNotExist(err) {
		return ftperr.NewIOFailure(virtual, err)
	}
	return RemoveOwner(filepath.Dir(real), filepath.Base(real))
}

// Delete removes a file and its ownership entry.
func (fs *FS) Delete(virtual string) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil {
		if os.IsNotExist(err) {
			return ftperr.NewNotFound(virtual)
		}
		return ftperr.NewIOFailure(virtual, err)
	}
	return RemoveOwner(filepath.Dir(real), filepath.Base(real))
}

// CreateForWrite opens virtual's real path for writing, truncating if
// appendMode is false, positioned at EOF if true. The caller records
// ownership (via WriteOwner) once the transfer commits.
func (fs *FS) CreateForWrite(virtual string, appendMode bool) (*os.File, string, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, "", err
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(real, flags, 0o644)
	if err != nil {
		return nil, "", ftperr.NewIOFailure(virtual, err)
	}
	return f, real, nil
}

// OpenForRead opens virtual for reading, seeking to offset (REST resume).
func (fs *FS) OpenForRead(virtual string, offset int64) (*os.File, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftperr.NewNotFound(virtual)
		}
		return nil, ftperr.NewIOFailure(virtual, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, ftperr.NewIOFailure(virtual, err)
		}
	}
	return f, nil
}

// CommitUpload records childName's ownership in realDir's sidecar once a
// STOR/APPE/STOU has completed successfully.
func (fs *FS) CommitUpload(realDir, childName string, uid, gid int64) error {
	return WriteOwner(realDir, childName, OwnerRecord{UID: uid, GID: gid})
}

// Rename moves an entry from oldVirtual to newVirtual. A same-filesystem
// move is a single atomic os.Rename; across filesystems (e.g. a site
// spanning multiple mounted sections) it falls back to a staged
// copy-then-rename so a reader never observes a partially written
// target, cleaning up the ".tmp-<rand>" staging file on any failure.
// Ownership is carried from the source directory's sidecar to the
// target directory's sidecar, even when the two are the same directory.
func (fs *FS) Rename(oldVirtual, newVirtual string) error {
	oldReal, err := fs.Resolve(oldVirtual)
	if err != nil {
		return err
	}
	newReal, err := fs.Resolve(newVirtual)
	if err != nil {
		return err
	}
	oldDir, oldName := filepath.Dir(oldReal), filepath.Base(oldReal)
	newDir, newName := filepath.Dir(newReal), filepath.Base(newReal)

	if err := os.Rename(oldReal, newReal); err == nil {
		return RenameOwner(oldDir, oldName, newDir, newName)
	} else if !isCrossDevice(err) {
		if os.IsNotExist(err) {
			return ftperr.NewNotFound(oldVirtual)
		}
		return ftperr.NewIOFailure(oldVirtual, err)
	}
	return fs.crossDeviceMove(oldReal, newReal, oldVirtual, newVirtual)
}

func (fs *FS) crossDeviceMove(oldReal, newReal, oldVirtual, newVirtual string) error {
	staging := fmt.Sprintf("%s.tmp-%d", newReal, rand.Int63())
	src, err := os.Open(oldReal)
	if err != nil {
		return ftperr.NewIOFailure(oldVirtual, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(staging, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ftperr.NewIOFailure(newVirtual, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(staging)
		return ftperr.NewIOFailure(newVirtual, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(staging)
		return ftperr.NewIOFailure(newVirtual, err)
	}
	if err := os.Rename(staging, newReal); err != nil {
		os.Remove(staging)
		return ftperr.NewIOFailure(newVirtual, err)
	}
	if err := os.Remove(oldReal); err != nil {
		return ftperr.NewIOFailure(oldVirtual, err)
	}
	return RenameOwner(filepath.Dir(oldReal), filepath.Base(oldReal), filepath.Dir(newReal), filepath.Base(newReal))
}
