// Package site implements the SITE command dispatcher: a table of
// administrative subcommands gated by the same ACL engine as ordinary
// control commands, per spec.md section 4.I. Grounded on the teacher's
// auth.SiteCommandHandler (OmkarMahajan07-HPE_Project/Ftpserver/auth/
// site_commands.go) for the per-subcommand-method shape, generalized
// from its hardcoded "requestingUser != admin" checks to the daemon's
// acl.Check/config.Allowed machinery and from its in-memory UserManager
// to internal/accounts and internal/credit.
package site

import (
	"context"
	"fmt"
	"strings"

	"duskftpd/internal/accounts"
	"duskftpd/internal/acl"
	"duskftpd/internal/config"
	"duskftpd/internal/vfs"
)

// SessionSummary is one row of SITE WHO's output, supplied by the
// control-connection layer (internal/ftpd) without this package
// depending on it.
type SessionSummary struct {
	Username string
	ClientIP string
	Command  string
}

// Context carries everything a SITE handler needs, assembled by the
// control-connection layer per invocation so this package never needs a
// dependency on internal/ftpd.
type Context struct {
	Ctx            context.Context
	Principal      acl.Principal
	User           accounts.User
	Accounts       *accounts.Store
	Config         *config.Snapshot
	FS             *vfs.FS
	Reply          func(code int, message string) error
	ReplyMultiline func(code int, lines []string) error
	ListSessions   func() []SessionSummary
}

// handler is one SITE subcommand's implementation.
type handler func(c Context, args []string) error

// command is one table entry: name, minimum argument count, the ACL
// keyword gating it, and its handler.
type command struct {
	name    string
	minArgs int
	aclKey  string
	run     handler
}

// table is the built-in administrative SITE command set spec.md section
// 4.I names: USER, ADDUSER, DELUSER, CHANGE, CHOWN, GIVE, TAKE, NUKE,
// UNNUKE, WHO, STATS, SECTIONS, plus GIVEOWN, the caller's-own-balance
// subset of GIVE spec.md section 4.E calls out — routed to its own
// handler (cmdGiveOwn) since its self-debit and leech refusal differ
// from GIVE's admin grant (cmdGive).
var table = map[string]command{
	"user":     {"user", 0, "site-user", cmdUser},
	"adduser":  {"adduser", 2, "site-adduser", cmdAddUser},
	"deluser":  {"deluser", 1, "site-deluser", cmdDelUser},
	"change":   {"change", 3, "site-change", cmdChange},
	"chown":    {"chown", 2, "site-chown", cmdChown},
	"give":     {"give", 2, "site-give", cmdGive},
	"giveown":  {"giveown", 2, "site-giveown", cmdGiveOwn},
	"take":     {"take", 2, "site-take", cmdTake},
	"nuke":     {"nuke", 2, "site-nuke", cmdNuke},
	"unnuke":   {"unnuke", 1, "site-unnuke", cmdUnnuke},
	"who":      {"who", 0, "site-who", cmdWho},
	"stats":    {"stats", 0, "site-stats", cmdStats},
	"sections": {"sections", 0, "site-sections", cmdSections},
}

// Dispatch looks up subcommand (case-insensitive), verifies the caller's
// ACL for it, and invokes its handler with the remaining arguments. An
// unrecognized subcommand is a 500; an ACL failure is a 550; both and
// every handler's own reply are written through c.Reply/c.ReplyMultiline
// by the handler itself — Dispatch's own error return is only for
// conditions the caller (the command dispatch loop) should log.
func Dispatch(c Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return c.Reply(500, "SITE requires a subcommand")
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	cmd, ok := table[name]
	if !ok {
		return c.Reply(500, "Unknown SITE subcommand")
	}
	if !c.Config.Allowed(cmd.aclKey, c.Principal) {
		return c.Reply(550, "Permission denied")
	}
	if len(args) < cmd.minArgs {
		return c.Reply(501, fmt.Sprintf("SITE %s requires %d argument(s)", strings.ToUpper(name), cmd.minArgs))
	}
	return cmd.run(c, args)
}
