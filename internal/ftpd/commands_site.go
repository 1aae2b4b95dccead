package ftpd

import "duskftpd/internal/site"

// cmdSITE implements the SITE command, delegating to internal/site's
// table-driven dispatcher with a Context built from the session's
// current state, per spec.md section 4.I. internal/site never imports
// this package; everything it needs crosses as data and closures here.
func (s *Session) cmdSITE(args string) error {
	c := site.Context{
		Ctx:            s.ctx,
		Principal:      s.aclPrincipal,
		User:           *s.principal,
		Accounts:       s.server.Accounts,
		Config:         s.snapshot(),
		FS:             s.fs(),
		Reply:          s.reply,
		ReplyMultiline: s.replyMultiline,
		ListSessions: func() []site.SessionSummary {
			return s.server.listSessions()
		},
	}
	return site.Dispatch(c, args)
}
