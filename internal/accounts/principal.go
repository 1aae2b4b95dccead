package accounts

import "duskftpd/internal/acl"

// Principal builds the acl.Principal tuple for u, resolving group ids to
// names through the repository's name cache — the single per-request
// derivation point spec.md section 3 describes ("Principal context:
// derived per request").
func (s *Store) Principal(u User) acl.Principal {
	p := acl.Principal{
		Username:     u.Name,
		PrimaryGroup: s.names.GroupName(u.PrimaryGroupID),
		Flags:        u.Flags,
	}
	for _, gid := range u.SecondaryGIDs {
		p.SecondaryGroups = append(p.SecondaryGroups, s.names.GroupName(gid))
	}
	return p
}
