package ftpd

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"duskftpd/internal/config"
	"duskftpd/internal/ftperr"
	"duskftpd/internal/logging"
)

// idleTimeout is the control-connection idle deadline, per spec.md
// section 4.F ("Idle deadline is reset per command; exceeding it sends
// 421 and closes"). config's idle_timeout record can override this per
// session once SITE IDLE negotiation is implemented; until then the
// daemon-wide default applies.
const idleTimeout = 15 * time.Minute

// handler is one control-command implementation. args is the command
// line with the verb and following whitespace already stripped.
type handler func(s *Session, args string) error

// commandTable maps the command verb (uppercased) to its handler,
// replacing the teacher's single handleCommand switch
// (OmkarMahajan07-HPE_Project/Ftpserver/ftp_server1.go) with the
// dispatch-table design spec.md section 9 calls for.
var commandTable = map[string]handler{
	"USER": (*Session).cmdUSER,
	"PASS": (*Session).cmdPASS,
	"AUTH": (*Session).cmdAUTH,
	"PBSZ": (*Session).cmdPBSZ,
	"PROT": (*Session).cmdPROT,
	"QUIT": (*Session).cmdQUIT,
	"REIN": (*Session).cmdREIN,
	"NOOP": (*Session).cmdNOOP,
	"SYST": (*Session).cmdSYST,
	"FEAT": (*Session).cmdFEAT,
	"OPTS": (*Session).cmdOPTS,
	"HELP": (*Session).cmdHELP,
	"TYPE": (*Session).cmdTYPE,
	"MODE": (*Session).cmdMODE,
	"STRU": (*Session).cmdSTRU,
	"ALLO": (*Session).cmdALLO,
	"PWD":  (*Session).cmdPWD,
	"XPWD": (*Session).cmdPWD,
	"CWD":  (*Session).cmdCWD,
	"XCWD": (*Session).cmdCWD,
	"CDUP": (*Session).cmdCDUP,
	"XCUP": (*Session).cmdCDUP,
	"MKD":  (*Session).cmdMKD,
	"XMKD": (*Session).cmdMKD,
	"RMD":  (*Session).cmdRMD,
	"XRMD": (*Session).cmdRMD,
	"DELE": (*Session).cmdDELE,
	"SIZE": (*Session).cmdSIZE,
	"MDTM": (*Session).cmdMDTM,
	"STAT": (*Session).cmdSTAT,
	"RNFR": (*Session).cmdRNFR,
	"RNTO": (*Session).cmdRNTO,
	"REST": (*Session).cmdREST,
	"PORT": (*Session).cmdPORTVerb,
	"EPRT": (*Session).cmdEPRTVerb,
	"PASV": (*Session).cmdPASVVerb,
	"EPSV": (*Session).cmdEPSVVerb,
	"LIST": (*Session).cmdLIST,
	"NLST": (*Session).cmdNLST,
	"MLSD": (*Session).cmdMLSD,
	"MLST": (*Session).cmdMLST,
	"RETR": (*Session).cmdRETR,
	"STOR": (*Session).cmdSTOR,
	"STOU": (*Session).cmdSTOU,
	"APPE": (*Session).cmdAPPE,
	"ABOR": (*Session).cmdABOR,
	"SITE": (*Session).cmdSITE,
	"MIC":  (*Session).cmdTLSCarrierUnsupported,
	"CONF": (*Session).cmdTLSCarrierUnsupported,
	"ENC":  (*Session).cmdTLSCarrierUnsupported,
}

// commandsAllowedAwaitingPass lists the only verbs a session in the
// AwaitingPass state may issue, per spec.md section 4.F ("A session in
// the 'awaiting PASS' state accepts only PASS, QUIT, and REIN; any
// other command produces 503"). Every other verb must 503 without
// advancing the session out of AwaitingPass.
var commandsAllowedAwaitingPass = map[string]bool{
	"PASS": true, "QUIT": true, "REIN": true,
}

// commandsRequiringAuth lists verbs only valid once Authenticated,
// per spec.md section 4.F's per-command state gates.
var commandsRequiringAuth = map[string]bool{
	"CWD": true, "XCWD": true, "CDUP": true, "XCUP": true, "PWD": true, "XPWD": true,
	"MKD": true, "XMKD": true, "RMD": true, "XRMD": true, "DELE": true,
	"SIZE": true, "MDTM": true, "RNFR": true, "RNTO": true, "REST": true,
	"PORT": true, "EPRT": true, "PASV": true, "EPSV": true,
	"LIST": true, "NLST": true, "MLSD": true, "MLST": true,
	"RETR": true, "STOR": true, "STOU": true, "APPE": true, "ABOR": true,
	"SITE": true, "TYPE": true, "MODE": true, "STRU": true,
}

// serve drives the control connection's read/dispatch/reply loop until
// the client disconnects, QUIT is issued, or the idle deadline trips.
// Owns the Session for its whole lifetime, satisfying spec.md section
// 5's "within one session, commands are processed strictly in order".
func (s *Session) serve() {
	defer s.conn.Close()
	defer s.closeDataPlan()
	defer s.cancel()

	ctx := s.logCtx("CONNECT", "")
	logging.Info(ctx, "client connected")

	if err := s.reply(220, greeting(s.snapshot())); err != nil {
		return
	}

	for {
		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		line, err := s.reader.ReadString('\n')
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.reply(421, "Idle timeout, closing control connection")
			}
			return
		}
		verb, args := parseCommandLine(line)
		if verb == "" {
			continue
		}

		s.refreshSnapshot()
		s.mu.Lock()
		s.lastCommand = verb
		s.mu.Unlock()
		cmdCtx := s.logCtx(verb, "")
		logging.Info(cmdCtx, "command received")

		if s.state == AwaitingPass && !commandsAllowedAwaitingPass[verb] {
			s.replyError(ftperr.NewWrongState("login with PASS first"))
			continue
		}
		if !s.checkACL(strings.ToLower(verb)) {
			s.reply(550, "Permission denied")
			continue
		}
		if commandsRequiringAuth[verb] {
			if err := s.requireAuthenticated(); err != nil {
				s.replyError(err)
				continue
			}
		}
		if verb != "RNTO" {
			s.clearRenameStash()
		}

		h, ok := commandTable[verb]
		if !ok {
			s.reply(500, "Unknown command")
			continue
		}
		if err := h(s, args); err != nil {
			logging.Warn(cmdCtx, "command failed", slog.String(logging.KeyError, err.Error()))
			s.replyError(err)
		}
		if verb == "QUIT" {
			return
		}
	}
}

// greeting returns the 220 banner text: "Welcome" when a banner path is
// configured (the banner file itself is not read), otherwise a generic
// "duskftpd ready" line.
func greeting(cfg *config.Snapshot) string {
	if cfg.Banner != "" {
		return "Welcome"
	}
	return "duskftpd ready"
}

// parseCommandLine splits one control line into its verb and the
// remainder, trimming the trailing CRLF/LF and any leading whitespace.
func parseCommandLine(line string) (verb, args string) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:idx]), strings.TrimSpace(line[idx+1:])
}

func atoi64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
