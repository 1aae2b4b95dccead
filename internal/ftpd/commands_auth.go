package ftpd

import (
	"crypto/tls"
	"strings"
	"time"

	"duskftpd/internal/accounts"
	"duskftpd/internal/acl"
	"duskftpd/internal/config"
)

// maxPassAttempts bounds PASS failures before the session is forced
// closed, per spec.md section 4.F ("bounded attempt counter that closes
// after N").
const maxPassAttempts = 3

// cmdUSER implements USER, per spec.md section 4.F: valid from
// Greeting/AwaitingUser/Authenticated, always resets auth state and
// moves to AwaitingPass.
func (s *Session) cmdUSER(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return s.reply(501, "Syntax error in parameters")
	}
	s.principal = nil
	s.aclPrincipal = acl.Principal{}
	s.pendingUsername = name
	s.state = AwaitingPass
	return s.reply(331, "Password required for "+name)
}

// cmdPASS implements PASS, per spec.md section 4.F.
func (s *Session) cmdPASS(args string) error {
	if s.state != AwaitingPass {
		return s.reply(503, "Login with USER first")
	}
	cfg := s.snapshot()
	user, err := s.server.Accounts.LoadByName(s.ctx, s.pendingUsername)
	if err != nil || !accounts.CheckPassword(args, user.PasswordHash) || user.Expired(time.Now()) {
		s.passAttempts++
		if s.passAttempts >= maxPassAttempts {
			s.reply(421, "Too many login failures")
			s.conn.Close()
			return nil
		}
		s.state = AwaitingUser
		return s.reply(530, "Login incorrect")
	}

	principal := s.server.Accounts.Principal(user)
	if cfg.TLSRequiredFor(config.ChannelControl, principal) && s.tlsControl != TLSOn {
		return s.reply(530, "TLS required for this account")
	}

	s.principal = &user
	s.aclPrincipal = principal
	s.cwd = "/"
	if user.HomeDir != "" {
		s.cwd = user.HomeDir
	}
	s.state = Authenticated

	now := time.Now()
	s.server.Accounts.SaveField(s.ctx, user.ID, func(u *accounts.User) {
		u.NumLogins++
		u.LastLoginAt = now
		u.LastLoginIP = s.clientIP
	})
	return s.reply(230, "Login successful")
}

// cmdAUTH implements AUTH TLS, upgrading the control channel before
// authentication, per spec.md section 4.F.
func (s *Session) cmdAUTH(args string) error {
	mech := strings.ToUpper(strings.TrimSpace(args))
	if mech != "TLS" && mech != "SSL" {
		return s.reply(504, "Unsupported AUTH mechanism")
	}
	if s.server.TLSConfig == nil {
		return s.reply(431, "TLS not available")
	}
	if err := s.reply(234, "AUTH TLS successful"); err != nil {
		return err
	}
	tlsConn := tls.Server(s.conn, s.server.TLSConfig)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		s.conn.Close()
		return nil
	}
	s.conn = tlsConn
	s.reader.Reset(tlsConn)
	s.tlsControl = TLSOn
	return nil
}

// cmdPBSZ implements PBSZ 0, a no-op accepted unconditionally per RFC 4217.
func (s *Session) cmdPBSZ(args string) error {
	return s.reply(200, "PBSZ=0")
}

// cmdPROT implements PROT P|C, gating data-channel TLS.
func (s *Session) cmdPROT(args string) error {
	switch strings.ToUpper(strings.TrimSpace(args)) {
	case "P":
		if s.server.TLSConfig == nil {
			return s.reply(431, "TLS not available")
		}
		s.protLevel = ProtPrivate
	case "C":
		s.protLevel = ProtClear
	default:
		return s.reply(504, "Unsupported PROT level")
	}
	return s.reply(200, "PROT command successful")
}

// cmdQUIT implements QUIT.
func (s *Session) cmdQUIT(args string) error {
	s.state = Closed
	return s.reply(221, "Goodbye")
}

// cmdREIN implements REIN: drops the principal and transfer state but
// keeps any negotiated TLS, per spec.md section 4.F.
func (s *Session) cmdREIN(args string) error {
	s.closeDataPlan()
	s.principal = nil
	s.aclPrincipal = acl.Principal{}
	s.cwd = "/"
	s.restartOffset = 0
	s.renameFrom = ""
	s.state = AwaitingUser
	return s.reply(220, "Ready for new user")
}

// cmdNOOP implements NOOP.
func (s *Session) cmdNOOP(args string) error { return s.reply(200, "NOOP ok") }

// cmdSYST implements SYST.
func (s *Session) cmdSYST(args string) error { return s.reply(215, "UNIX Type: L8") }

// cmdFEAT implements FEAT, listing the extensions spec.md section 6 names.
func (s *Session) cmdFEAT(args string) error {
	return s.replyMultiline(211, []string{
		"Features:",
		" EPRT",
		" EPSV",
		" MDTM",
		" MLST modify*;size*;type*;perm*;",
		" MLSD",
		" PBSZ",
		" PROT",
		" REST STREAM",
		" SIZE",
		" TVFS",
		" UTF8",
		"End",
	})
}

// cmdOPTS implements OPTS, recognizing "UTF8 ON" per spec.md section 6.
func (s *Session) cmdOPTS(args string) error {
	fields := strings.Fields(args)
	if len(fields) >= 1 && strings.EqualFold(fields[0], "UTF8") {
		return s.reply(200, "UTF8 set to on")
	}
	return s.reply(501, "Option not recognized")
}

// cmdHELP implements HELP with a static command summary.
func (s *Session) cmdHELP(args string) error {
	return s.reply(214, "Help: see RFC 959, 2428, 3659, 4217")
}

// cmdTLSCarrierUnsupported answers MIC/CONF/ENC, per spec.md section
// 4.F: these require a negotiated TLS command-channel protection level
// this daemon does not implement as a separate carrier (AUTH TLS covers
// the whole control channel instead), so they always report 533.
func (s *Session) cmdTLSCarrierUnsupported(args string) error {
	return s.reply(533, "Command protection level not supported")
}
