package ftpd

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"duskftpd/internal/accounts"
	"duskftpd/internal/config"
)

func testServer(t *testing.T) (*Server, *accounts.Store) {
	t.Helper()
	store, err := accounts.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Snapshot{SitePath: t.TempDir(), ValidIP: "*"}
	srv := NewServer(cfg, store, nil, nil)
	return srv, store
}

func dialSession(t *testing.T, srv *Server) (*bufio.Reader, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	sess := newSession(srv, server, srv.Config())
	go sess.serve()
	return bufio.NewReader(client), client
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestLoginFlow(t *testing.T) {
	srv, store := testServer(t)
	hash, err := accounts.HashPassword("hunter2")
	require.NoError(t, err)
	_, err = store.CreateUser(t.Context(), accounts.User{
		Name: "alice", PasswordHash: hash, DefaultRatio: 1,
	})
	require.NoError(t, err)

	r, conn := dialSession(t, srv)
	require.Contains(t, readLine(t, r), "220")

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte("USER alice\r\n"))
	require.Contains(t, readLine(t, r), "331")

	conn.Write([]byte("PASS hunter2\r\n"))
	require.Contains(t, readLine(t, r), "230")

	conn.Write([]byte("PWD\r\n"))
	line := readLine(t, r)
	require.Contains(t, line, "257")
	require.Contains(t, line, `"/"`)

	conn.Write([]byte("QUIT\r\n"))
	require.Contains(t, readLine(t, r), "221")
}

func TestBadPasswordIsRejected(t *testing.T) {
	srv, store := testServer(t)
	hash, err := accounts.HashPassword("hunter2")
	require.NoError(t, err)
	_, err = store.CreateUser(t.Context(), accounts.User{
		Name: "bob", PasswordHash: hash, DefaultRatio: 1,
	})
	require.NoError(t, err)

	r, conn := dialSession(t, srv)
	readLine(t, r)

	conn.Write([]byte("USER bob\r\n"))
	readLine(t, r)
	conn.Write([]byte("PASS wrong\r\n"))
	require.Contains(t, readLine(t, r), "530")
}

func TestCommandsBeforeLoginAreRejected(t *testing.T) {
	srv, _ := testServer(t)
	r, conn := dialSession(t, srv)
	readLine(t, r)

	conn.Write([]byte("PWD\r\n"))
	require.Contains(t, readLine(t, r), "500")
}

func TestCommandsWhileAwaitingPassAreRejected(t *testing.T) {
	srv, store := testServer(t)
	hash, err := accounts.HashPassword("hunter2")
	require.NoError(t, err)
	_, err = store.CreateUser(t.Context(), accounts.User{
		Name: "carol", PasswordHash: hash, DefaultRatio: 1,
	})
	require.NoError(t, err)

	r, conn := dialSession(t, srv)
	readLine(t, r)

	conn.Write([]byte("USER carol\r\n"))
	require.Contains(t, readLine(t, r), "331")

	conn.Write([]byte("NOOP\r\n"))
	require.Contains(t, readLine(t, r), "503")

	conn.Write([]byte("PASS hunter2\r\n"))
	require.Contains(t, readLine(t, r), "230")
}
