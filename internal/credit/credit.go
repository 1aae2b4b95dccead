// Package credit implements per-(user, section) credit accounting in
// kilobyte units, per spec.md section 4.E. Grounded on the teacher's
// atomic connection/attempt counters (auth.AuthService, golang.org/x/
// crypto-adjacent atomic usage in OmkarMahajan07-HPE_Project/Ftpserver/
// auth/auth.go) for the "mutate one field under the repository's
// per-record transaction" shape, generalized here from in-memory
// atomics to accounts.Store.SaveField's read-modify-write.
package credit

import (
	"context"

	"duskftpd/internal/accounts"
	"duskftpd/internal/acl"
	"duskftpd/internal/config"
	"duskftpd/internal/ftperr"
)

// DefaultSection is the implicit section name for paths no configured
// section claims (spec.md section 3).
const DefaultSection = "default"

// Leech is the ratio value meaning "no debit, no credit earned from
// downloads of others' files" (spec.md section 4.E / GLOSSARY).
const Leech = 0

// Inherit is the per-section override sentinel meaning "fall through to
// the next tier" (spec.md GLOSSARY).
const Inherit = -1

// EffectiveRatio resolves the ratio that governs a transfer of
// virtualPath by user, per spec.md section 4.E's precedence: a matching
// creditcheck record overrides everything; else the user's own
// per-section override; else the section's ratio; else the user's
// default ratio.
func EffectiveRatio(cfg *config.Snapshot, principal acl.Principal, user accounts.User, virtualPath, section string) int {
	if r := cfg.CreditCheckOverride(virtualPath, principal); r != Inherit {
		return r
	}
	if r := user.SectionRatio(section); r != Inherit {
		return r
	}
	if r, ok := cfg.SectionRatio(section); ok && r != Inherit {
		return r
	}
	return user.DefaultRatio
}

// Debit reduces user's balance in section by kb kilobytes. RETR calls it
// before the copy starts, with the full expected size, and Refunds the
// part that was not delivered. A leech ratio (0) is a no-op: leech
// users are never debited. Negative balances are a valid, documented
// state ("negative = indebted" per spec.md section 3), so Debit never
// refuses for balance reasons; the bool return reports whether a debit
// was actually applied (false only for leech), not whether it was
// "allowed" in a quota sense — disk/credit quota refusal is
// spec.md's QuotaExceeded and is decided by the transfer pipeline's
// pre-flight check, not by this primitive.
func Debit(ctx context.Context, store *accounts.Store, userID int64, ratio int, section string, kb int64) (bool, error) {
	if ratio == Leech {
		return false, nil
	}
	err := store.SaveField(ctx, userID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] -= kb
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Credit increases user's balance in section by ratio*kb kilobytes —
// applied at the completion of an upload. A leech ratio is a no-op.
func Credit(ctx context.Context, store *accounts.Store, userID int64, ratio int, section string, kb int64) (bool, error) {
	if ratio == Leech {
		return false, nil
	}
	err := store.SaveField(ctx, userID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] += int64(ratio) * kb
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Refund reverses a partial debit pro-rata for bytes not delivered,
// called when a download is aborted mid-transfer (spec.md section 4.H).
func Refund(ctx context.Context, store *accounts.Store, userID int64, ratio int, section string, undeliveredKB int64) error {
	if ratio == Leech || undeliveredKB <= 0 {
		return nil
	}
	return store.SaveField(ctx, userID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] += undeliveredKB
	})
}

// TransferCredit derives the section for virtualPath and user's effective
// ratio within it, then applies Credit for a completed upload of
// byteCount bytes (converted to whole kilobytes). RETR's counterpart
// debits up front instead (see cmdRETR), since a download's total size
// is known before the copy starts and STOR's generally isn't.
func TransferCredit(ctx context.Context, store *accounts.Store, cfg *config.Snapshot, principal acl.Principal, user accounts.User, virtualPath string, byteCount int64) error {
	section := cfg.SectionFor(virtualPath)
	ratio := EffectiveRatio(cfg, principal, user, virtualPath, section)
	kb := byteCount / 1024
	_, err := Credit(ctx, store, user.ID, ratio, section, kb)
	return err
}

// Grant credits userID's section balance by kb kilobytes with no
// corresponding debit from anyone — SITE GIVE's admin-grant path for a
// caller holding the full "give" ACL keyword (internal/site.cmdGive),
// as opposed to GIVEOWN's self-debit-then-credit path (Give, below).
func Grant(ctx context.Context, store *accounts.Store, userID int64, section string, kb int64) error {
	return store.SaveField(ctx, userID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] += kb
	})
}

// Give transfers kb kilobytes of credit in section from giver to
// receiver — SITE GIVEOWN's primitive (spec.md section 4.E / 4.I), used
// only when the caller holds "giveown" and is spending their own
// balance (internal/site.cmdGiveOwn); also reused by Take, below, with
// the direction reversed.
func Give(ctx context.Context, store *accounts.Store, giverID, receiverID int64, section string, kb int64) error {
	if err := store.SaveField(ctx, giverID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] -= kb
	}); err != nil {
		return err
	}
	return store.SaveField(ctx, receiverID, func(u *accounts.User) {
		if u.Credits == nil {
			u.Credits = map[string]int64{}
		}
		u.Credits[section] += kb
	})
}

// Take is Give with the direction reversed: moves kb from target into
// the operator's own balance (SITE TAKE).
func Take(ctx context.Context, store *accounts.Store, targetID, operatorID int64, section string, kb int64) error {
	return Give(ctx, store, targetID, operatorID, section, kb)
}

// CheckQuota reports a QuotaExceeded error if downloading byteCount
// bytes under virtualPath would require more free space than
// freeSpaceBytes allows (spec.md's free_space scalar), independent of
// credit balance. A freeSpaceBytes of 0 or less means unbounded.
func CheckQuota(freeSpaceBytes, byteCount int64, virtualPath string) error {
	if freeSpaceBytes > 0 && byteCount > freeSpaceBytes {
		return ftperr.NewQuotaExceeded(virtualPath)
	}
	return nil
}
