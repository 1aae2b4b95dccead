package site

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"duskftpd/internal/accounts"
	"duskftpd/internal/credit"
)

// cmdUser implements SITE USER: reports the caller's own account summary.
func cmdUser(c Context, args []string) error {
	u := c.User
	return c.ReplyMultiline(200, []string{
		fmt.Sprintf("User: %s", u.Name),
		fmt.Sprintf("Ratio: %d", u.DefaultRatio),
		fmt.Sprintf("Credits (default): %d KB", u.CreditBalance(credit.DefaultSection)),
		fmt.Sprintf("Logins: %d", u.NumLogins),
		"End",
	})
}

// cmdAddUser implements SITE ADDUSER <name> <password> [ratio].
func cmdAddUser(c Context, args []string) error {
	name, password := args[0], args[1]
	ratio := 1
	if len(args) >= 3 {
		if r, err := strconv.Atoi(args[2]); err == nil {
			ratio = r
		}
	}
	hash, err := accounts.HashPassword(password)
	if err != nil {
		return c.Reply(451, "Failed to hash password")
	}
	created, err := c.Accounts.CreateUser(c.Ctx, accounts.User{
		Name:         name,
		PasswordHash: hash,
		DefaultRatio: ratio,
	})
	if err != nil {
		return c.Reply(550, "User already exists")
	}
	return c.Reply(200, fmt.Sprintf("User %s created with id %d", created.Name, created.ID))
}

// cmdDelUser implements SITE DELUSER <name>.
func cmdDelUser(c Context, args []string) error {
	if err := c.Accounts.DeleteUser(c.Ctx, args[0]); err != nil {
		return c.Reply(550, "User not found")
	}
	return c.Reply(200, fmt.Sprintf("User %s deleted", args[0]))
}

// cmdChange implements SITE CHANGE <name> <field> <value>, covering the
// mutable fields a sysop commonly adjusts: ratio, tagline, home, flags.
func cmdChange(c Context, args []string) error {
	name, field, value := args[0], strings.ToLower(args[1]), args[2]
	target, err := c.Accounts.LoadByName(c.Ctx, name)
	if err != nil {
		return c.Reply(550, "User not found")
	}
	mutate := func(u *accounts.User) {
		switch field {
		case "ratio":
			if r, perr := strconv.Atoi(value); perr == nil {
				u.DefaultRatio = r
			}
		case "tagline":
			u.Tagline = value
		case "home":
			u.HomeDir = value
		case "flags":
			u.Flags = value
		}
	}
	if err := c.Accounts.SaveField(c.Ctx, target.ID, mutate); err != nil {
		return c.Reply(451, "Failed to update user")
	}
	return c.Reply(200, fmt.Sprintf("%s's %s updated", name, field))
}

// cmdChown implements SITE CHOWN <path> <user>: reassigns a file or
// directory's owner sidecar entry.
func cmdChown(c Context, args []string) error {
	path, username := args[0], args[1]
	target, err := c.Accounts.LoadByName(c.Ctx, username)
	if err != nil {
		return c.Reply(550, "User not found")
	}
	real, err := c.FS.Resolve(path)
	if err != nil {
		return c.Reply(550, "Invalid path")
	}
	dir, name := dirAndBase(real)
	if err := c.FS.CommitUpload(dir, name, target.ID, target.PrimaryGroupID); err != nil {
		return c.Reply(550, "Failed to reassign owner")
	}
	return c.Reply(200, fmt.Sprintf("%s now owned by %s", path, username))
}

func dirAndBase(real string) (string, string) {
	idx := strings.LastIndexByte(real, '/')
	if idx < 0 {
		return real, ""
	}
	return real[:idx], real[idx+1:]
}

// parseGiveArgs parses the shared SITE GIVE/GIVEOWN argument shape:
// <user> <kb> [section].
func parseGiveArgs(args []string) (username string, kb int64, section string, err error) {
	username = args[0]
	kb, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, "", err
	}
	section = credit.DefaultSection
	if len(args) >= 3 {
		section = args[2]
	}
	return username, kb, section, nil
}

// cmdGive implements SITE GIVE <user> <kb> [section]: an admin grant
// that credits the named user directly with no corresponding debit from
// the caller, gated on the full "site-give" ACL keyword. Grounded on
// original_source/src/cmd/site/give.cpp's path taken when the caller
// holds "give" (as opposed to only "giveown") — it credits the target
// outright rather than moving anything out of the caller's own balance.
func cmdGive(c Context, args []string) error {
	username, kb, section, err := parseGiveArgs(args)
	if err != nil {
		return c.Reply(501, "Invalid amount")
	}
	target, err := c.Accounts.LoadByName(c.Ctx, username)
	if err != nil {
		return c.Reply(550, "User not found")
	}
	if err := credit.Grant(c.Ctx, c.Accounts, target.ID, section, kb); err != nil {
		return c.Reply(451, "Failed to transfer credit")
	}
	return c.Reply(200, fmt.Sprintf("Gave %d KB to %s", kb, username))
}

// cmdGiveOwn implements SITE GIVEOWN <user> <kb> [section]: the
// caller's-own-balance subset of GIVE, gated on the "site-giveown" ACL
// keyword. The caller's own balance is debited before the target is
// credited, refused up front for a leech caller (ratio 0, or inherited
// ratio falling through to a leech default ratio) exactly as
// original_source/src/cmd/site/give.cpp refuses "Not allowed to give
// credits when you have leech!" — a leech account has nothing of its
// own to give away.
func cmdGiveOwn(c Context, args []string) error {
	username, kb, section, err := parseGiveArgs(args)
	if err != nil {
		return c.Reply(501, "Invalid amount")
	}
	ratio := c.User.SectionRatio(section)
	if ratio == credit.Leech || (ratio == credit.Inherit && c.User.DefaultRatio == credit.Leech) {
		return c.Reply(550, "Not allowed to give credits when you have leech")
	}
	target, err := c.Accounts.LoadByName(c.Ctx, username)
	if err != nil {
		return c.Reply(550, "User not found")
	}
	if err := credit.Give(c.Ctx, c.Accounts, c.User.ID, target.ID, section, kb); err != nil {
		return c.Reply(451, "Failed to transfer credit")
	}
	return c.Reply(200, fmt.Sprintf("Taken %d KB from you, given to %s", kb, username))
}

// cmdTake implements SITE TAKE <user> <kb> [section]: moves kb
// kilobytes of credit from the named user into the caller's own balance.
func cmdTake(c Context, args []string) error {
	username := args[0]
	kb, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Reply(501, "Invalid amount")
	}
	section := credit.DefaultSection
	if len(args) >= 3 {
		section = args[2]
	}
	target, err := c.Accounts.LoadByName(c.Ctx, username)
	if err != nil {
		return c.Reply(550, "User not found")
	}
	if err := credit.Take(c.Ctx, c.Accounts, target.ID, c.User.ID, section, kb); err != nil {
		return c.Reply(451, "Failed to transfer credit")
	}
	return c.Reply(200, fmt.Sprintf("Took %d KB from %s", kb, username))
}

// cmdNuke implements SITE NUKE <path> <multiplier> [reason]: for each
// file directly in path that has a recorded owner, debits that owner
// size/1024 × multiplier KB (at ratio 1) in path's section.
// Subdirectories are skipped, not descended into, and creditloss
// records are not consulted.
func cmdNuke(c Context, args []string) error {
	path := args[0]
	multiplier, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return c.Reply(501, "Invalid multiplier")
	}
	entries, err := c.FS.List(path)
	if err != nil {
		return c.Reply(550, "Path not found")
	}
	section := c.Config.SectionFor(path)
	nuked := 0
	for _, e := range entries {
		if e.IsDir || e.Owner.UID < 0 {
			continue
		}
		kb := int64(float64(e.Size/1024) * multiplier)
		if kb == 0 {
			continue
		}
		if _, err := credit.Debit(c.Ctx, c.Accounts, e.Owner.UID, 1, section, kb); err == nil {
			nuked++
		}
	}
	return c.Reply(200, fmt.Sprintf("Nuked %d file(s) under %s at %.1fx", nuked, path, multiplier))
}

// cmdUnnuke implements SITE UNNUKE <path>: this daemon keeps no
// persistent nuke ledger (spec.md's event log is out of scope for this
// package), so UNNUKE can only report that credit reversal isn't
// automatically reconstructable and must be corrected manually via
// SITE GIVE.
func cmdUnnuke(c Context, args []string) error {
	return c.Reply(200, fmt.Sprintf("%s: no nuke record is kept; use SITE GIVE to restore any credit manually", args[0]))
}

// cmdWho implements SITE WHO: lists currently connected sessions.
func cmdWho(c Context, args []string) error {
	sessions := c.ListSessions()
	lines := make([]string, 0, len(sessions)+1)
	lines = append(lines, fmt.Sprintf("%d user(s) online", len(sessions)))
	for _, sess := range sessions {
		lines = append(lines, fmt.Sprintf("%-16s %-16s %s", sess.Username, sess.ClientIP, sess.Command))
	}
	return c.ReplyMultiline(200, lines)
}

// cmdStats implements SITE STATS [user]: reports transfer totals for
// the named user, or the caller if omitted.
func cmdStats(c Context, args []string) error {
	target := c.User
	if len(args) >= 1 {
		loaded, err := c.Accounts.LoadByName(c.Ctx, args[0])
		if err != nil {
			return c.Reply(550, "User not found")
		}
		target = loaded
	}
	lastLogin := "never"
	if !target.LastLoginAt.IsZero() {
		lastLogin = target.LastLoginAt.Format(time.RFC3339)
	}
	return c.ReplyMultiline(200, []string{
		fmt.Sprintf("User: %s", target.Name),
		fmt.Sprintf("Transfers: %d, %d bytes", target.TransferCount, target.TransferBytes),
		fmt.Sprintf("Last login: %s", lastLogin),
		"End",
	})
}

// cmdSections implements SITE SECTIONS: lists the configured sections
// and their ratios.
func cmdSections(c Context, args []string) error {
	lines := make([]string, 0, len(c.Config.Sections)+1)
	lines = append(lines, "Sections:")
	for _, sec := range c.Config.Sections {
		lines = append(lines, fmt.Sprintf(" %-16s ratio=%d", sec.Name, sec.Ratio))
	}
	return c.ReplyMultiline(200, lines)
}
