package vfs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"duskftpd/internal/ftperr"
)

const sidecarFilename = ".duskftpd-owners"

// OwnerRecord is one child entry's ownership: the creating user's uid
// and primary gid. Missing entries resolve to (unknown, unknown) and
// never abort a listing or a transfer.
type OwnerRecord struct {
	UID int64 `json:"uid"`
	GID int64 `json:"gid"`
}

// sidecar is the on-disk form of a directory's ownership sidecar: a
// fixed filename holding a map of child name to OwnerRecord. Replaces
// the Boost-serialized unordered_map original_source/fs/owner.hpp wrote
// with an explicit, versioned JSON document; readers treat a missing
// version field as version 1.
type sidecar struct {
	Version int                    `json:"version"`
	Entries map[string]OwnerRecord `json:"entries"`
}

const sidecarVersion = 1

const unknownID int64 = -1

// UnknownOwner is the record resolved for a child with no sidecar entry.
var UnknownOwner = OwnerRecord{UID: unknownID, GID: unknownID}

func sidecarPath(realDir string) string {
	return filepath.Join(realDir, sidecarFilename)
}

func readSidecar(realDir string) (sidecar, error) {
	data, err := os.ReadFile(sidecarPath(realDir))
	if err != nil {
		if os.IsNotExist(err) {
			return sidecar{Version: sidecarVersion, Entries: map[string]OwnerRecord{}}, nil
		}
		return sidecar{}, ftperr.NewIOFailure(realDir, err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return sidecar{}, ftperr.NewStoreError("corrupt owner sidecar in %s: %v", realDir, err)
	}
	if sc.Version == 0 {
		sc.Version = sidecarVersion
	}
	if sc.Entries == nil {
		sc.Entries = map[string]OwnerRecord{}
	}
	return sc, nil
}

// writeSidecar writes sc to realDir's sidecar via a temp-file-then-rename,
// so a reader never observes a torn write.
func writeSidecar(realDir string, sc sidecar) error {
	sc.Version = sidecarVersion
	data, err := json.Marshal(sc)
	if err != nil {
		return ftperr.NewStoreError("encode owner sidecar for %s: %v", realDir, err)
	}
	target := sidecarPath(realDir)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ftperr.NewIOFailure(realDir, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return ftperr.NewIOFailure(realDir, err)
	}
	return nil
}

// ReadOwner looks up childName's ownership record in realDir's sidecar.
// A missing entry is not an error; it resolves to UnknownOwner.
func ReadOwner(realDir, childName string) (OwnerRecord, error) {
	sc, err := readSidecar(realDir)
	if err != nil {
		return OwnerRecord{}, err
	}
	rec, ok := sc.Entries[childName]
	if !ok {
		return UnknownOwner, nil
	}
	return rec, nil
}

// WriteOwner sets childName's ownership record in realDir's sidecar,
// taking a flock on the directory for the read-modify-write so
// concurrent writers never race each other's updates.
func WriteOwner(realDir, childName string, rec OwnerRecord) error {
	lock, err := Lock(realDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	sc, err := readSidecar(realDir)
	if err != nil {
		return err
	}
	sc.Entries[childName] = rec
	return writeSidecar(realDir, sc)
}

// RemoveOwner deletes childName's entry from realDir's sidecar, if present.
func RemoveOwner(realDir, childName string) error {
	lock, err := Lock(realDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	sc, err := readSidecar(realDir)
	if err != nil {
		return err
	}
	if _, ok := sc.Entries[childName]; !ok {
		return nil
	}
	delete(sc.Entries, childName)
	return writeSidecar(realDir, sc)
}

// RenameOwner moves childName's entry from oldDir's sidecar to newDir's
// sidecar under newName, covering both a same-directory rename
// (oldDir == newDir) and a cross-directory move.
func RenameOwner(oldDir, oldName, newDir, newName string) error {
	rec, err := ReadOwner(oldDir, oldName)
	if err != nil {
		return err
	}
	if err := RemoveOwner(oldDir, oldName); err != nil {
		return err
	}
	if rec == UnknownOwner {
		return nil
	}
	return WriteOwner(newDir, newName, rec)
}
