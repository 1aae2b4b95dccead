package ftpd

import (
	"fmt"
	"strconv"
	"strings"

	"duskftpd/internal/ftperr"
)

// cmdTYPE implements TYPE A|I, rejecting any other variant per spec.md
// section 4.F.
func (s *Session) cmdTYPE(args string) error {
	switch strings.ToUpper(strings.TrimSpace(args)) {
	case "A", "A N":
		s.transferType = TypeASCII
	case "I", "L 8":
		s.transferType = TypeBinary
	default:
		return s.reply(504, "Type not supported")
	}
	s.resetRestart()
	return s.reply(200, "Type set")
}

// cmdMODE implements MODE S, rejecting anything else.
func (s *Session) cmdMODE(args string) error {
	if !strings.EqualFold(strings.TrimSpace(args), "S") {
		return s.reply(504, "Only Stream mode supported")
	}
	s.mode = 'S'
	return s.reply(200, "Mode set to S")
}

// cmdSTRU implements STRU F, rejecting anything else.
func (s *Session) cmdSTRU(args string) error {
	if !strings.EqualFold(strings.TrimSpace(args), "F") {
		return s.reply(504, "Only File structure supported")
	}
	s.structure = 'F'
	return s.reply(200, "Structure set to F")
}

// cmdALLO implements ALLO as a no-op acknowledgement; this daemon
// doesn't preallocate file space.
func (s *Session) cmdALLO(args string) error { return s.reply(202, "ALLO not needed") }

// cmdPWD implements PWD/XPWD.
func (s *Session) cmdPWD(args string) error {
	return s.reply(257, fmt.Sprintf("%q is the current directory", s.cwd))
}

// cmdCWD implements CWD/XCWD: verify existence and listing permission
// before changing the session's working directory.
func (s *Session) cmdCWD(args string) error {
	target := s.resolveVirtual(args)
	entry, err := s.fs().Stat(target)
	if err != nil {
		return err
	}
	if !entry.IsDir {
		return ftperr.NewNotFound(target)
	}
	if !s.checkACL("download") {
		return ftperr.NewPermissionDenied(target)
	}
	s.cwd = target
	return s.reply(250, "Directory changed to "+target)
}

// cmdCDUP implements CDUP/XCUP.
func (s *Session) cmdCDUP(args string) error {
	return s.cmdCWD("..")
}

// cmdMKD implements MKD/XMKD.
func (s *Session) cmdMKD(args string) error {
	target := s.resolveVirtual(args)
	if !s.checkACL("makedir") {
		return ftperr.NewPermissionDenied(target)
	}
	uid, gid := s.ownerIDs()
	if err := s.fs().Mkdir(target, uid, gid); err != nil {
		return err
	}
	return s.reply(257, fmt.Sprintf("%q directory created", target))
}

// cmdRMD implements RMD/XRMD.
func (s *Session) cmdRMD(args string) error {
	target := s.resolveVirtual(args)
	if !s.checkACL("deldir") {
		return ftperr.NewPermissionDenied(target)
	}
	if err := s.fs().Rmdir(target); err != nil {
		return err
	}
	return s.reply(250, "Directory removed")
}

// cmdDELE implements DELE.
func (s *Session) cmdDELE(args string) error {
	target := s.resolveVirtual(args)
	if !s.checkACL("delete") {
		return ftperr.NewPermissionDenied(target)
	}
	if err := s.fs().Delete(target); err != nil {
		return err
	}
	return s.reply(250, "File deleted")
}

// cmdSIZE implements SIZE.
func (s *Session) cmdSIZE(args string) error {
	target := s.resolveVirtual(args)
	entry, err := s.fs().Stat(target)
	if err != nil {
		return err
	}
	return s.reply(213, strconv.FormatInt(entry.Size, 10))
}

// cmdMDTM implements MDTM.
func (s *Session) cmdMDTM(args string) error {
	target := s.resolveVirtual(args)
	entry, err := s.fs().Stat(target)
	if err != nil {
		return err
	}
	return s.reply(213, entry.ModTime.UTC().Format("20060102150405"))
}

// cmdSTAT implements STAT: without an argument, reports session status;
// with one, a single-file or directory listing in the same form as LIST.
func (s *Session) cmdSTAT(args string) error {
	if strings.TrimSpace(args) == "" {
		return s.replyMultiline(211, []string{
			fmt.Sprintf("Connected to %s", s.clientIP),
			fmt.Sprintf("Type: %s", typeName(s.transferType)),
			"End of status",
		})
	}
	target := s.resolveVirtual(args)
	lines, err := s.listLines(target)
	if err != nil {
		return err
	}
	return s.replyMultiline(213, append([]string{"Status follows:"}, lines...))
}

func typeName(t TransferType) string {
	if t == TypeASCII {
		return "ASCII"
	}
	return "Binary"
}

// cmdRNFR implements RNFR: stashes a validated source path.
func (s *Session) cmdRNFR(args string) error {
	target := s.resolveVirtual(args)
	if _, err := s.fs().Stat(target); err != nil {
		return err
	}
	if !s.checkACL("rename") {
		return ftperr.NewPermissionDenied(target)
	}
	s.renameFrom = target
	return s.reply(350, "Ready for RNTO")
}

// cmdRNTO implements RNTO: consumes the RNFR stash.
func (s *Session) cmdRNTO(args string) error {
	if s.renameFrom == "" {
		return s.reply(503, "RNFR required first")
	}
	dest := s.resolveVirtual(args)
	src := s.renameFrom
	s.renameFrom = ""
	if err := s.fs().Rename(src, dest); err != nil {
		return err
	}
	return s.reply(250, "Rename successful")
}

// cmdREST implements REST n: sets the restart offset, valid only before
// the next transfer.
func (s *Session) cmdREST(args string) error {
	n, err := atoi64(args)
	if err != nil || n < 0 {
		return s.reply(501, "Invalid restart offset")
	}
	s.restartOffset = n
	return s.reply(350, fmt.Sprintf("Restarting at %d", n))
}

// cmdABOR implements ABOR: cancels any in-flight transfer for this
// session, per spec.md section 5.
func (s *Session) cmdABOR(args string) error {
	if s.activeTransfer != nil {
		s.activeTransfer()
		s.activeTransfer = nil
		return s.reply(426, "Transfer aborted")
	}
	return s.reply(226, "No transfer in progress")
}

// ownerIDs returns the (uid, gid) pair recorded in the owner sidecar for
// files/directories this session creates: the authenticated principal's
// numeric user id and primary group id. Neither accounts.User nor
// accounts.Group currently carries a numeric uid/gid distinct from the
// badger-assigned record id, so the record id stands in for both, per
// spec.md section 4.A's "implementation-defined but round-trippable"
// owner sidecar format.
func (s *Session) ownerIDs() (uid, gid int64) {
	if s.principal == nil {
		return vfsUnknownID, vfsUnknownID
	}
	return s.principal.ID, s.principal.PrimaryGroupID
}

const vfsUnknownID int64 = -1
