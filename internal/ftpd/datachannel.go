package ftpd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"duskftpd/internal/ftperr"
)

// planKind discriminates the three states of a session's data-channel
// plan, per spec.md section 3 ("data-channel plan (pending active addr
// or pending passive listener)").
type planKind int

const (
	planNone planKind = iota
	planActive
	planPassive
)

// DataPlan is the session's pending data-channel arrangement, set by
// PORT/EPRT or PASV/EPSV and consumed (cleared) by the next transfer or
// listing command that calls open().
type DataPlan struct {
	Kind       planKind
	ActiveAddr string // host:port the client told us to connect to (PORT/EPRT)
	Listener   net.Listener
	Port       int
}

// dataIdleWindow bounds how long a PASV listener waits for the client
// to connect before the command fails with 425, per spec.md section
// 4.G ("Idle without connection acceptance beyond a configured window
// aborts with 425").
const dataIdleWindow = 30 * time.Second

// handlePORT implements PORT, per spec.md section 4.F. Grounded on the
// teacher's handlePORT (OmkarMahajan07-HPE_Project/Ftpserver/
// ftp_server1.go) for the "h1,h2,h3,h4,p1,p2" parse. The parsed address
// is stored as given; it is not checked against valid_ip or
// active_ports, nor against the server's own address.
func (s *Session) handlePORT(args string) error {
	addr, err := parsePortArg(args)
	if err != nil {
		return s.reply(501, "Syntax error in parameters")
	}
	s.closeDataPlan()
	s.dataPlan = DataPlan{Kind: planActive, ActiveAddr: addr}
	return s.reply(200, "PORT command successful")
}

// handleEPRT implements the RFC 2428 extended form: "|1|host|port|" (or
// "|2|...|" for IPv6).
func (s *Session) handleEPRT(args string) error {
	fields := strings.Split(args, "|")
	if len(fields) < 5 {
		return s.reply(501, "Syntax error in parameters")
	}
	host, portStr := fields[2], fields[3]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return s.reply(501, "Syntax error in parameters")
	}
	s.closeDataPlan()
	s.dataPlan = DataPlan{Kind: planActive, ActiveAddr: net.JoinHostPort(host, strconv.Itoa(port))}
	return s.reply(200, "EPRT command successful")
}

func parsePortArg(args string) (string, error) {
	parts := strings.Split(strings.TrimSpace(args), ",")
	if len(parts) != 6 {
		return "", ftperr.NewProtocolError("malformed PORT argument")
	}
	ip := strings.Join(parts[0:4], ".")
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", ftperr.NewProtocolError("malformed PORT argument")
	}
	return net.JoinHostPort(ip, strconv.Itoa(p1*256+p2)), nil
}

// handlePASV implements PASV, per spec.md section 4.F/4.G: allocate a
// listener from pasv_ports using the server's round-robin cursor,
// retrying on bind failure, and advertise the configured pasv_addr.
func (s *Session) handlePASV() error {
	s.closeDataPlan()
	listener, port, err := s.server.allocatePassiveListener()
	if err != nil {
		return s.reply(425, "Can't open passive connection - no available ports")
	}
	s.dataPlan = DataPlan{Kind: planPassive, Listener: listener, Port: port}

	addr := s.pasvAdvertiseAddress()
	ipParts := strings.Split(addr, ".")
	if len(ipParts) != 4 {
		ipParts = []string{"0", "0", "0", "0"}
	}
	p1, p2 := port/256, port%256
	return s.reply(227, fmt.Sprintf("Entering Passive Mode (%s,%s,%s,%s,%d,%d)",
		ipParts[0], ipParts[1], ipParts[2], ipParts[3], p1, p2))
}

// handleEPSV implements the RFC 2428 extended passive form, replying
// with just the port in "|||port|" form.
func (s *Session) handleEPSV() error {
	s.closeDataPlan()
	listener, port, err := s.server.allocatePassiveListener()
	if err != nil {
		return s.reply(425, "Can't open passive connection - no available ports")
	}
	s.dataPlan = DataPlan{Kind: planPassive, Listener: listener, Port: port}
	return s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", port))
}

// pasvAdvertiseAddress picks the address to advertise: the first
// pasv_addr entry whose address, minus its last dotted component, is a
// string prefix of the client's IP; otherwise the last entry marked
// primary; otherwise the control connection's local address. No bouncer
// set or bouncer_only option is consulted.
func (s *Session) pasvAdvertiseAddress() string {
	cfg := s.snapshot()
	var primary string
	for _, pa := range cfg.PasvAddr {
		if pa.Primary {
			primary = pa.Address
		}
		if pa.Address != "" && strings.HasPrefix(s.clientIP, addressPrefix(pa.Address)) {
			return pa.Address
		}
	}
	if primary != "" {
		return primary
	}
	host, _, _ := net.SplitHostPort(s.conn.LocalAddr().String())
	return host
}

func addressPrefix(addr string) string {
	idx := strings.LastIndex(addr, ".")
	if idx < 0 {
		return addr
	}
	return addr[:idx]
}

func (s *Session) closeDataPlan() {
	if s.dataPlan.Listener != nil {
		s.dataPlan.Listener.Close()
	}
	s.dataPlan = DataPlan{}
}

// openData acquires the data connection described by the session's
// current plan, clearing the plan once acquired. Active mode connects
// out to the stored peer; passive mode accepts exactly one connection,
// rejecting a mismatched peer unless FXP is permitted for allowFXP.
func (s *Session) openData(ctx context.Context, allowFXP bool) (net.Conn, error) {
	plan := s.dataPlan
	s.dataPlan = DataPlan{}
	switch plan.Kind {
	case planActive:
		d := net.Dialer{Timeout: 10 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", plan.ActiveAddr)
		if err != nil {
			return nil, ftperr.NewIOFailure(plan.ActiveAddr, err)
		}
		return s.maybeUpgradeData(conn)
	case planPassive:
		defer plan.Listener.Close()
		type acceptResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan acceptResult, 1)
		go func() {
			c, err := plan.Listener.Accept()
			ch <- acceptResult{c, err}
		}()
		select {
		case res := <-ch:
			if res.err != nil {
				return nil, ftperr.NewIOFailure("passive accept", res.err)
			}
			if !allowFXP && !peerMatches(res.conn, s.clientIP) {
				res.conn.Close()
				return nil, ftperr.NewPeerMismatch(res.conn.RemoteAddr().String())
			}
			return s.maybeUpgradeData(res.conn)
		case <-time.After(dataIdleWindow):
			return nil, ftperr.NewIOFailure("passive accept", fmt.Errorf("timed out waiting for data connection"))
		case <-ctx.Done():
			return nil, ftperr.NewTransferAborted("")
		}
	default:
		return nil, ftperr.NewProtocolError("no PORT or PASV issued")
	}
}

// cmdPORTVerb, cmdEPRTVerb, cmdPASVVerb and cmdEPSVVerb adapt the
// PORT/EPRT/PASV/EPSV handlers to the uniform handler(s, args) shape
// commandTable requires.
func (s *Session) cmdPORTVerb(args string) error { return s.handlePORT(args) }
func (s *Session) cmdEPRTVerb(args string) error { return s.handleEPRT(args) }
func (s *Session) cmdPASVVerb(string) error      { return s.handlePASV() }
func (s *Session) cmdEPSVVerb(string) error       { return s.handleEPSV() }

func peerMatches(conn net.Conn, expectedIP string) bool {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	return host == expectedIP
}

// maybeUpgradeData wraps conn in TLS if PROT P was negotiated, per
// spec.md section 4.F ("PBSZ 0, PROT P|C -> gate data-channel TLS") and
// 4.G ("TLS upgrade on data runs only if PROT P and the negotiated
// session requested it").
func (s *Session) maybeUpgradeData(conn net.Conn) (net.Conn, error) {
	if s.protLevel != ProtPrivate || s.server.TLSConfig == nil {
		return conn, nil
	}
	tlsConn := tls.Server(conn, s.server.TLSConfig)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		conn.Close()
		return nil, ftperr.NewIOFailure("data TLS handshake", err)
	}
	s.tlsData = TLSOn
	return tlsConn, nil
}
