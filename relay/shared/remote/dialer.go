package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pennsieve/sftp-relay-service/relay/shared/config"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Dialer opens sessions to one configured remote server.
type Dialer struct {
	remote config.Remote
	logger *slog.Logger
}

func NewDialer(remote config.Remote, logger *slog.Logger) *Dialer {
	return &Dialer{
		remote: remote,
		logger: logger.With(slog.Group("remote",
			slog.String("address", remote.Address()),
			slog.String("username", remote.Username))),
	}
}

// Open connects, authenticates and starts the sftp subsystem. If a working directory is configured it
// must exist and be a directory. All errors are *ConnectionError and leave nothing open.
func (d *Dialer) Open(ctx context.Context) (*Session, error) {
	address := d.remote.Address()
	clientConfig, err := d.clientConfig()
	if err != nil {
		return nil, &ConnectionError{Op: "configure client", Address: address, Err: err}
	}

	netDialer := net.Dialer{Timeout: d.remote.ConnectTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Address: address, Err: err}
	}

	transport, err := d.handshake(ctx, conn, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Op: "ssh handshake", Address: address, Err: err}
	}

	client, err := sftp.NewClient(transport)
	if err != nil {
		_ = transport.Close()
		return nil, &ConnectionError{Op: "start sftp subsystem", Address: address, Err: err}
	}

	session := &Session{transport: transport, client: client, workDir: d.remote.WorkDir}
	if err := d.prepare(session); err != nil {
		_ = session.Close()
		return nil, &ConnectionError{Op: "prepare session", Address: address, Err: err}
	}
	d.logger.Info("remote session opened", slog.String("workDir", d.remote.WorkDir))
	return session, nil
}

// handshake bounds the SSH handshake by the connect timeout and by ctx, whichever ends first.
func (d *Dialer) handshake(ctx context.Context, conn net.Conn, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	deadline := time.Now().Add(d.remote.ConnectTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	sshConn, channels, requests, err := ssh.NewClientConn(conn, d.remote.Address(), clientConfig)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(ctxErr, err)
		}
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sshConn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, channels, requests), nil
}

func (d *Dialer) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := authMethod(d.remote.Credential)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            d.remote.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.remote.ConnectTimeout,
	}, nil
}

func authMethod(credential config.Credential) (ssh.AuthMethod, error) {
	switch c := credential.(type) {
	case config.Password:
		return ssh.Password(string(c)), nil
	case config.PrivateKey:
		var signer ssh.Signer
		var err error
		if len(c.Passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(c.PEM, c.Passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(c.PEM)
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	default:
		return nil, fmt.Errorf("unsupported credential type %T", credential)
	}
}

func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if len(d.remote.HostKey) == 0 {
		d.logger.Warn("no host key configured; the remote server's identity will not be verified",
			slog.String("configKey", config.RemoteHostKeyKey))
		return ssh.InsecureIgnoreHostKey(), nil
	}
	hostKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(d.remote.HostKey))
	if err != nil {
		return nil, fmt.Errorf("error parsing host key: %w", err)
	}
	return ssh.FixedHostKey(hostKey), nil
}

func (d *Dialer) prepare(session *Session) error {
	if len(session.workDir) > 0 {
		info, err := session.client.Stat(session.workDir)
		if err != nil {
			return fmt.Errorf("error checking working directory %s: %w", session.workDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory %s is not a directory", session.workDir)
		}
	}
	if d.remote.Probe {
		entries, err := session.List(".")
		if err != nil {
			return fmt.Errorf("probe failed: %w", err)
		}
		d.logger.Debug("probe listed working directory", slog.Int("entries", len(entries)))
	}
	return nil
}
