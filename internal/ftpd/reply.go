package ftpd

import (
	"fmt"
	"strings"

	"duskftpd/internal/ftperr"
)

// reply writes a single-line three-digit FTP reply, CRLF-terminated,
// per spec.md section 6.
func (s *Session) reply(code int, message string) error {
	_, err := fmt.Fprintf(s.conn, "%d %s\r\n", code, message)
	return err
}

// replyMultiline writes a multi-line reply: "NNN-" continuation lines
// followed by a final "NNN " line, per spec.md section 6 and RFC 959.
func (s *Session) replyMultiline(code int, lines []string) error {
	if len(lines) == 0 {
		return s.reply(code, "")
	}
	var b strings.Builder
	for i, line := range lines {
		if i == len(lines)-1 {
			fmt.Fprintf(&b, "%d %s\r\n", code, line)
		} else {
			fmt.Fprintf(&b, "%d-%s\r\n", code, line)
		}
	}
	_, err := s.conn.Write([]byte(b.String()))
	return err
}

// replyError maps err to its nearest FTP reply code via
// ftperr.ReplyCodeFor and writes it with err.Error() as the text; an
// err that isn't a *ftperr.Error gets ReplyCodeFor's 451 fallback.
func (s *Session) replyError(err error) error {
	return s.reply(ftperr.ReplyCodeFor(err), err.Error())
}
