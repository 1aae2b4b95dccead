package ftpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"duskftpd/internal/accounts"
	"duskftpd/internal/credit"
	"duskftpd/internal/ftperr"
	"duskftpd/internal/logging"
	"duskftpd/internal/vfs"
)

// transferBufSize is the bounded-buffer loop's chunk size, per spec.md
// section 4.H's "bounded-buffer loop" fallback path.
const transferBufSize = 64 * 1024

// cmdLIST implements LIST, per spec.md section 4.F/4.H.
func (s *Session) cmdLIST(args string) error {
	return s.runListing(args, false, false)
}

// cmdNLST implements NLST: names only, one per line.
func (s *Session) cmdNLST(args string) error {
	return s.runListing(args, true, false)
}

// cmdMLSD implements MLSD: machine-readable directory listing (RFC 3659).
func (s *Session) cmdMLSD(args string) error {
	return s.runListing(args, false, true)
}

// cmdMLST implements MLST: a single machine-readable fact line for one
// path, sent on the control connection rather than a data channel.
func (s *Session) cmdMLST(args string) error {
	target := s.resolveVirtual(args)
	entry, err := s.fs().Stat(target)
	if err != nil {
		return err
	}
	return s.replyMultiline(250, []string{
		"Listing " + target,
		mlsdFact(entry),
		"End",
	})
}

func (s *Session) runListing(args string, namesOnly, machine bool) error {
	if !s.checkACL("download") {
		return ftperr.NewPermissionDenied(s.cwd)
	}
	target := s.resolveVirtual(args)
	entries, err := s.listingEntries(target)
	if err != nil {
		return err
	}

	if err := s.reply(150, "Opening data connection for listing"); err != nil {
		return err
	}
	conn, err := s.openData(s.ctx, false)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg := s.snapshot()
	w := bufio.NewWriter(conn)
	for _, e := range entries {
		if cfg.HideUser.Allow(s.aclPrincipal) {
			continue
		}
		var line string
		switch {
		case machine:
			line = mlsdFact(e) + " " + e.Name
		case namesOnly:
			line = e.Name
		default:
			line = formatListLine(e)
		}
		fmt.Fprintf(w, "%s\r\n", line)
	}
	if err := w.Flush(); err != nil {
		return ftperr.NewIOFailure(target, err)
	}
	return s.reply(226, "Transfer complete")
}

// listLines renders the same rows runListing sends over the data
// channel, for STAT's inline form.
func (s *Session) listLines(target string) ([]string, error) {
	entries, err := s.listingEntries(target)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, formatListLine(e))
	}
	return lines, nil
}

func (s *Session) listingEntries(target string) ([]vfs.Entry, error) {
	stat, err := s.fs().Stat(target)
	if err != nil {
		return nil, err
	}
	var entries []vfs.Entry
	if stat.IsDir {
		entries, err = s.fs().List(target)
		if err != nil {
			return nil, err
		}
	} else {
		entries = []vfs.Entry{stat}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func formatListLine(e vfs.Entry) string {
	perm := "-rw-r--r--"
	if e.IsDir {
		perm = "drwxr-xr-x"
	}
	return fmt.Sprintf("%s 1 %d %d %12d %s %s",
		perm, e.Owner.UID, e.Owner.GID, e.Size,
		e.ModTime.Format("Jan 02 15:04"), e.Name)
}

func mlsdFact(e vfs.Entry) string {
	kind := "file"
	if e.IsDir {
		kind = "dir"
	}
	return fmt.Sprintf("modify=%s;size=%d;type=%s;perm=%s;",
		e.ModTime.UTC().Format("20060102150405"), e.Size, kind, listPerm(e))
}

func listPerm(e vfs.Entry) string {
	if e.IsDir {
		return "el"
	}
	return "r"
}

// cmdRETR implements RETR: download, per spec.md section 4.H.
func (s *Session) cmdRETR(args string) error {
	target := s.resolveVirtual(args)
	if !s.checkACL("download") {
		return ftperr.NewPermissionDenied(target)
	}
	entry, err := s.fs().Stat(target)
	if err != nil {
		return err
	}
	offset := s.restartOffset
	s.resetRestart()

	cfg := s.snapshot()
	expected := entry.Size - offset
	if err := credit.CheckQuota(cfg.FreeSpace, expected, target); err != nil {
		return err
	}

	f, err := s.fs().OpenForRead(target, offset)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.reply(150, fmt.Sprintf("Opening %s connection for %s (%d bytes)", typeName(s.transferType), target, entry.Size)); err != nil {
		return err
	}
	conn, err := s.openData(s.ctx, s.fxpAllowed("down"))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	s.activeTransfer = cancel
	defer func() { s.activeTransfer = nil }()

	// Debit the full expected size before the copy runs, so a REST-resumed
	// sequence of attempts bills the source file's bytes exactly once in
	// total: whatever this attempt doesn't deliver is refunded below
	// rather than left undebited (spec.md: "Credits already debited are
	// refunded pro-rata for bytes not delivered").
	section := cfg.SectionFor(target)
	ratio := credit.EffectiveRatio(cfg, s.aclPrincipal, *s.principal, target, section)
	expectedKB := expected / 1024
	if _, err := credit.Debit(s.ctx, s.server.Accounts, s.principal.ID, ratio, section, expectedKB); err != nil {
		logging.Warn(s.logCtx("RETR", target), "credit debit failed")
	}

	_, down := cfg.SpeedCaps(target, s.aclPrincipal)
	var w io.Writer = conn
	if s.transferType == TypeASCII {
		w = newASCIIWriter(conn)
	}
	n, xferErr := pacedCopy(ctx, w, f, down, transferBufSize)

	credit.Refund(s.ctx, s.server.Accounts, s.principal.ID, ratio, section, expectedKB-n/1024)

	if xferErr != nil {
		if s.server.Metrics != nil {
			s.server.Metrics.RecordTransfer("download", "aborted", n, 0)
		}
		logging.Warn(s.logCtx("RETR", target), "download failed")
		if xferErr == context.Canceled {
			return s.reply(426, "Transfer aborted")
		}
		return ftperr.NewIOFailure(target, xferErr)
	}

	s.server.Accounts.SaveField(s.ctx, s.principal.ID, func(u *accounts.User) {
		u.TransferCount++
		u.TransferBytes += n
	})
	if s.server.Metrics != nil {
		s.server.Metrics.RecordTransfer("download", "ok", n, 0)
	}
	return s.reply(226, "Transfer complete")
}

// fxpAllowed reports whether FXP is permitted for direction ("up"/"down")
// under the session's current ACL principal, per config's allow_fxp records.
func (s *Session) fxpAllowed(direction string) bool {
	cfg := s.snapshot()
	for _, r := range cfg.AllowFXP {
		if direction == "down" && r.Down {
			return true
		}
		if direction == "up" && r.Up {
			return true
		}
	}
	return false
}

// cmdSTOR implements STOR: upload, per spec.md section 4.H.
func (s *Session) cmdSTOR(args string) error {
	return s.store(args, false, false)
}

// cmdAPPE implements APPE: upload in append mode.
func (s *Session) cmdAPPE(args string) error {
	return s.store(args, true, false)
}

// cmdSTOU implements STOU: upload under a server-generated unique name.
func (s *Session) cmdSTOU(args string) error {
	return s.store(args, false, true)
}

func (s *Session) store(args string, appendMode, unique bool) error {
	target := s.resolveVirtual(args)
	if unique {
		target = uniqueName(target)
	}
	if !s.checkACL("upload") {
		return ftperr.NewPermissionDenied(target)
	}

	_, statErr := s.fs().Stat(target)
	exists := statErr == nil
	if exists && !appendMode && s.restartOffset == 0 && !s.checkACL("overwrite") {
		return ftperr.NewAlreadyExists(target)
	}

	f, real, err := s.fs().CreateForWrite(target, appendMode || s.restartOffset > 0)
	if err != nil {
		return err
	}
	defer f.Close()
	offset := s.restartOffset
	s.resetRestart()
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return ftperr.NewIOFailure(target, err)
		}
	}

	if err := s.reply(150, fmt.Sprintf("Ready to receive %s", target)); err != nil {
		return err
	}
	conn, err := s.openData(s.ctx, s.fxpAllowed("up"))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	s.activeTransfer = cancel
	defer func() { s.activeTransfer = nil }()

	cfg := s.snapshot()
	up, _ := cfg.SpeedCaps(target, s.aclPrincipal)
	var r io.Reader = conn
	if s.transferType == TypeASCII {
		r = newASCIIReader(conn)
	}
	n, xferErr := pacedCopy(ctx, f, r, up, transferBufSize)

	if xferErr != nil {
		if !cfg.DLIncomplete {
			f.Close()
			os.Remove(real)
		}
		if s.server.Metrics != nil {
			s.server.Metrics.RecordTransfer("upload", "aborted", n, 0)
		}
		if xferErr == context.Canceled {
			return s.reply(426, "Transfer aborted")
		}
		return ftperr.NewIOFailure(target, xferErr)
	}

	uid, gid := s.ownerIDs()
	if err := s.fs().CommitUpload(dirOf(real), baseOf(real), uid, gid); err != nil {
		logging.Warn(s.logCtx("STOR", target), "owner sidecar update failed")
	}
	if err := credit.TransferCredit(s.ctx, s.server.Accounts, cfg, s.aclPrincipal, *s.principal, target, n); err != nil {
		logging.Warn(s.logCtx("STOR", target), "credit credit failed")
	}
	s.server.Accounts.SaveField(s.ctx, s.principal.ID, func(u *accounts.User) {
		u.TransferCount++
		u.TransferBytes += n
	})
	if s.server.Metrics != nil {
		s.server.Metrics.RecordTransfer("upload", "ok", n, 0)
	}
	return s.reply(226, "Transfer complete")
}

func uniqueName(target string) string {
	return fmt.Sprintf("%s.%d.%d", target, time.Now().UnixNano(), rand.Int63())
}

func dirOf(real string) string {
	idx := strings.LastIndexByte(real, '/')
	if idx < 0 {
		return real
	}
	return real[:idx]
}

func baseOf(real string) string {
	idx := strings.LastIndexByte(real, '/')
	if idx < 0 {
		return real
	}
	return real[idx+1:]
}

// pacedCopy copies from r to w, pacing to rateBps bytes/sec when
// rateBps > 0 (spec.md section 4.H: "enforce speed_limit ... by
// pacing"). Returns bytes copied and the first error encountered,
// including ctx cancellation.
func pacedCopy(ctx context.Context, w io.Writer, r io.Reader, rateBps int64, bufSize int) (int64, error) {
	buf := make([]byte, bufSize)
	var total int64
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if rateBps > 0 {
				target := time.Duration(float64(total) / float64(rateBps) * float64(time.Second))
				if elapsed := time.Since(start); target > elapsed {
					time.Sleep(target - elapsed)
				}
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
