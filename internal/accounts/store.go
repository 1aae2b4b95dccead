package accounts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"path"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"duskftpd/internal/ftperr"
)

// Key namespace, following marmos91-dittofs's pkg/metadata/store/badger
// prefixed-key convention (pkg/metadata/store/badger/encoding.go):
//
//	Data                  Prefix  Key                    Value
//	User record           "u:"    u:<id>                 User (JSON)
//	Username -> id index  "un:"   un:<name>               id (binary, 8 bytes)
//	Group record          "g:"    g:<id>                 Group (JSON)
//	Group name -> id      "gn:"   gn:<name>               id (binary, 8 bytes)
//	Next user id counter  "seq:u"                         id (binary, 8 bytes)
//	Next group id counter "seq:g"                         id (binary, 8 bytes)
const (
	prefixUser     = "u:"
	prefixUserName = "un:"
	prefixGroup    = "g:"
	prefixGroupName = "gn:"
	keyUserSeq     = "seq:u"
	keyGroupSeq    = "seq:g"
)

func keyUser(id int64) []byte        { return []byte(prefixUser + formatID(id)) }
func keyUserName(name string) []byte { return []byte(prefixUserName + name) }
func keyGroup(id int64) []byte        { return []byte(prefixGroup + formatID(id)) }
func keyGroupName(name string) []byte { return []byte(prefixGroupName + name) }

func formatID(id int64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return string(buf)
}

func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// Store is the badger-backed User/Group repository (spec.md section
// 4.D). Unlike dittofs's metadata store (one badger.DB per share), this
// daemon runs a single embedded database for the whole site's accounts.
type Store struct {
	db     *badger.DB
	names  *NameCache
}

// Open opens (creating if absent) a badger database at dir and wraps it
// with the repository's name/id caches.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, ftperr.NewStoreError("open accounts store at %s: %v", dir, err)
	}
	s := &Store{db: db, names: newNameCache()}
	if err := s.warmCache(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) warmCache() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefixUser)); it.ValidForPrefix([]byte(prefixUser)); it.Next() {
			item := it.Item()
			if strings.HasPrefix(string(item.Key()), prefixUserName) {
				continue
			}
			err := item.Value(func(val []byte) error {
				var u User
				if err := json.Unmarshal(val, &u); err != nil {
					return err
				}
				s.names.putUser(u.ID, u.Name)
				return nil
			})
			if err != nil {
				return err
			}
		}
		it2 := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it2.Close()
		for it2.Seek([]byte(prefixGroup)); it2.ValidForPrefix([]byte(prefixGroup)); it2.Next() {
			item := it2.Item()
			if strings.HasPrefix(string(item.Key()), prefixGroupName) {
				continue
			}
			err := item.Value(func(val []byte) error {
				var g Group
				if err := json.Unmarshal(val, &g); err != nil {
					return err
				}
				s.names.putGroup(g.ID, g.Name)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func nextID(txn *badger.Txn, seqKey string) (int64, error) {
	var next int64 = 1
	item, err := txn.Get([]byte(seqKey))
	if err == nil {
		err = item.Value(func(val []byte) error {
			next = decodeID(val) + 1
			return nil
		})
		if err != nil {
			return 0, err
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}
	if err := txn.Set([]byte(seqKey), encodeID(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// CreateUser assigns u a fresh monotonic id and persists it. u.ID is
// overwritten with the assigned id.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyUserName(u.Name)); err == nil {
			return ftperr.NewAlreadyExists(u.Name)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		id, err := nextID(txn, keyUserSeq)
		if err != nil {
			return err
		}
		u.ID = id
		data, err := json.Marshal(u)
		if err != nil {
			return ftperr.NewStoreError("encode user %s: %v", u.Name, err)
		}
		if err := txn.Set(keyUser(u.ID), data); err != nil {
			return err
		}
		return txn.Set(keyUserName(u.Name), encodeID(u.ID))
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return User{}, fe
		}
		return User{}, ftperr.NewStoreError("create user %s: %v", u.Name, err)
	}
	s.names.putUser(u.ID, u.Name)
	return u, nil
}

// LoadByID fetches a user by id.
func (s *Store) LoadByID(ctx context.Context, id int64) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var u User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUser(id))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(formatID(id))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &u) })
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return User{}, fe
		}
		return User{}, ftperr.NewStoreError("load user %d: %v", id, err)
	}
	return u, nil
}

// LoadByName fetches a user by name, via the name->id index.
func (s *Store) LoadByName(ctx context.Context, name string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var u User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUserName(name))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(name)
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(val []byte) error { id = decodeID(val); return nil }); err != nil {
			return err
		}
		uitem, err := txn.Get(keyUser(id))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(name)
		}
		if err != nil {
			return err
		}
		return uitem.Value(func(val []byte) error { return json.Unmarshal(val, &u) })
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return User{}, fe
		}
		return User{}, ftperr.NewStoreError("load user %q: %v", name, err)
	}
	return u, nil
}

// SaveField atomically mutates a single user via mutate, re-reading and
// re-writing the whole record inside one transaction (badger has no
// partial-document update; the "single-field" contract in spec.md
// section 4.D is honored at the call-site granularity, not the storage
// layer's).
func (s *Store) SaveField(ctx context.Context, id int64, mutate func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUser(id))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(formatID(id))
		}
		if err != nil {
			return err
		}
		var u User
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &u) }); err != nil {
			return err
		}
		mutate(&u)
		data, err := json.Marshal(u)
		if err != nil {
			return ftperr.NewStoreError("encode user %d: %v", id, err)
		}
		return txn.Set(keyUser(id), data)
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return fe
		}
		return ftperr.NewStoreError("save user %d: %v", id, err)
	}
	return nil
}

// DeleteUser removes a user record and its name index entry.
func (s *Store) DeleteUser(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUserName(name))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(name)
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(val []byte) error { id = decodeID(val); return nil }); err != nil {
			return err
		}
		if err := txn.Delete(keyUser(id)); err != nil {
			return err
		}
		return txn.Delete(keyUserName(name))
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return fe
		}
		return ftperr.NewStoreError("delete user %q: %v", name, err)
	}
	s.names.dropUser(name)
	return nil
}

// ListByGlob returns every user whose name matches the shell glob
// pattern (path.Match semantics), for SITE commands like LISTUSERS.
func (s *Store) ListByGlob(ctx context.Context, pattern string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []User
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if strings.HasPrefix(string(item.Key()), prefixUserName) {
				continue
			}
			err := item.Value(func(val []byte) error {
				var u User
				if err := json.Unmarshal(val, &u); err != nil {
					return err
				}
				if matched, _ := globName(pattern, u.Name); matched {
					out = append(out, u)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ftperr.NewStoreError("list users matching %q: %v", pattern, err)
	}
	return out, nil
}

// CreateGroup assigns g a fresh id and persists it.
func (s *Store) CreateGroup(ctx context.Context, g Group) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyGroupName(g.Name)); err == nil {
			return ftperr.NewAlreadyExists(g.Name)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		id, err := nextID(txn, keyGroupSeq)
		if err != nil {
			return err
		}
		g.ID = id
		data, err := json.Marshal(g)
		if err != nil {
			return ftperr.NewStoreError("encode group %s: %v", g.Name, err)
		}
		if err := txn.Set(keyGroup(g.ID), data); err != nil {
			return err
		}
		return txn.Set(keyGroupName(g.Name), encodeID(g.ID))
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return Group{}, fe
		}
		return Group{}, ftperr.NewStoreError("create group %s: %v", g.Name, err)
	}
	s.names.putGroup(g.ID, g.Name)
	return g, nil
}

// LoadGroupByName fetches a group by name.
func (s *Store) LoadGroupByName(ctx context.Context, name string) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	var g Group
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyGroupName(name))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(name)
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(val []byte) error { id = decodeID(val); return nil }); err != nil {
			return err
		}
		gitem, err := txn.Get(keyGroup(id))
		if err == badger.ErrKeyNotFound {
			return ftperr.NewNotFound(name)
		}
		if err != nil {
			return err
		}
		return gitem.Value(func(val []byte) error { return json.Unmarshal(val, &g) })
	})
	if err != nil {
		if fe, ok := err.(*ftperr.Error); ok {
			return Group{}, fe
		}
		return Group{}, ftperr.NewStoreError("load group %q: %v", name, err)
	}
	return g, nil
}

// GroupCounts returns the number of users whose primary group, and
// separately whose secondary groups, include groupName — spec.md
// section 4.D's "group counts query the users collection" requirement.
func (s *Store) GroupCounts(ctx context.Context, groupName string) (primary, secondary int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	scanErr := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if strings.HasPrefix(string(item.Key()), prefixUserName) {
				continue
			}
			verr := item.Value(func(val []byte) error {
				var u User
				if err := json.Unmarshal(val, &u); err != nil {
					return err
				}
				if primaryGroupName, ok := s.names.groupName(u.PrimaryGroupID); ok && primaryGroupName == groupName {
					primary++
				}
				for _, gid := range u.SecondaryGIDs {
					if name, ok := s.names.groupName(gid); ok && name == groupName {
						secondary++
						break
					}
				}
				return nil
			})
			if verr != nil {
				return verr
			}
		}
		return nil
	})
	if scanErr != nil {
		return 0, 0, ftperr.NewStoreError("count group %q members: %v", groupName, scanErr)
	}
	return primary, secondary, nil
}

// Names exposes the repository's name/id cache for ACL principal
// construction without a round-trip through badger on every command.
func (s *Store) Names() *NameCache { return s.names }

func globName(pattern, name string) (bool, error) {
	return path.Match(pattern, name)
}
