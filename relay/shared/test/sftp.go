package test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// SFTPServer is an in-process SSH server offering only the sftp subsystem, backed by an in-memory
// filesystem shared by every connection.
type SFTPServer struct {
	Fixture
	Username string
	Password string
	HostKey  ssh.PublicKey

	config         *ssh.ServerConfig
	listener       net.Listener
	handlers       sftp.Handlers
	mu             sync.Mutex
	authorizedKeys []ssh.PublicKey
	conns          map[net.Conn]bool
	wg             sync.WaitGroup
}

func NewSFTPServer(t *testing.T, username, password string) *SFTPServer {
	_, hostPrivate, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPrivate)
	require.NoError(t, err)

	s := &SFTPServer{
		Fixture:  Fixture{T: t},
		Username: username,
		Password: password,
		HostKey:  hostSigner.PublicKey(),
		handlers: sftp.InMemHandler(),
		conns:    map[net.Conn]bool{},
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == s.Username && len(s.Password) > 0 && string(password) == s.Password {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, authorized := range s.authorizedKeys {
				if conn.User() == s.Username && bytes.Equal(authorized.Marshal(), key.Marshal()) {
					return nil, nil
				}
			}
			return nil, errors.New("public key rejected")
		},
	}
	s.config.AddHostKey(hostSigner)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.serve()
	return s
}

// WithAuthorizedKey generates a client key pair, authorizes its public half, and returns the
// private half PEM encoded. A non-empty passphrase encrypts the PEM.
func (s *SFTPServer) WithAuthorizedKey(passphrase string) []byte {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(s.T, err)
	sshPublic, err := ssh.NewPublicKey(public)
	require.NoError(s.T, err)

	var block *pem.Block
	if len(passphrase) == 0 {
		block, err = ssh.MarshalPrivateKey(private, "relay test key")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(private, "relay test key", []byte(passphrase))
	}
	require.NoError(s.T, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizedKeys = append(s.authorizedKeys, sshPublic)
	return pem.EncodeToMemory(block)
}

func (s *SFTPServer) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *SFTPServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *SFTPServer) Address() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// AuthorizedHostKey is the server's host key in authorized_keys format.
func (s *SFTPServer) AuthorizedHostKey() string {
	return string(bytes.TrimSpace(ssh.MarshalAuthorizedKey(s.HostKey)))
}

// Client opens a password authenticated client for inspecting or preparing the server's filesystem.
// It is closed when the test completes.
func (s *SFTPServer) Client() *sftp.Client {
	transport, err := ssh.Dial("tcp", s.Address(), &ssh.ClientConfig{
		User:            s.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.Password)},
		HostKeyCallback: ssh.FixedHostKey(s.HostKey),
	})
	require.NoError(s.T, err)
	client, err := sftp.NewClient(transport)
	require.NoError(s.T, err)
	s.T.Cleanup(func() {
		_ = client.Close()
		_ = transport.Close()
	})
	return client
}

func (s *SFTPServer) WithDirectories(paths ...string) *SFTPServer {
	client := s.Client()
	for _, p := range paths {
		require.NoError(s.T, client.MkdirAll(p))
	}
	return s
}

func (s *SFTPServer) ReadFile(path string) string {
	f, err := s.Client().Open(path)
	require.NoError(s.T, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(s.T, err)
	return string(content)
}

func (s *SFTPServer) FileExists(path string) bool {
	_, err := s.Client().Stat(path)
	return err == nil
}

// ConnectionCount is the number of connections currently open.
func (s *SFTPServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *SFTPServer) Teardown() {
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *SFTPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = true
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *SFTPServer) handle(conn net.Conn) {
	defer conn.Close()
	serverConn, channels, requests, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer serverConn.Close()
	go ssh.DiscardRequests(requests)

	for newChannel := range channels {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, channelRequests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				// payload is a uint32 length followed by the subsystem name
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(channelRequests)

		server := sftp.NewRequestServer(channel, s.handlers)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}
