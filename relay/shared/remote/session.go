package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is one SSH transport with one sftp client on it. Names passed to its methods are resolved
// against the working directory, if there is one. A Session is not safe for concurrent transfers.
type Session struct {
	transport *ssh.Client
	client    *sftp.Client
	workDir   string

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) resolve(name string) string {
	if len(s.workDir) == 0 || path.IsAbs(name) {
		return name
	}
	return path.Join(s.workDir, name)
}

// Create opens name for writing, truncating it if it already exists.
func (s *Session) Create(name string) (io.WriteCloser, error) {
	remotePath := s.resolve(name)
	f, err := s.client.Create(remotePath)
	if err != nil {
		return nil, fmt.Errorf("error creating remote file %s: %w", remotePath, err)
	}
	return f, nil
}

func (s *Session) List(dir string) ([]os.FileInfo, error) {
	remotePath := s.resolve(dir)
	entries, err := s.client.ReadDir(remotePath)
	if err != nil {
		return nil, fmt.Errorf("error listing remote directory %s: %w", remotePath, err)
	}
	return entries, nil
}

func (s *Session) Remove(name string) error {
	remotePath := s.resolve(name)
	if err := s.client.Remove(remotePath); err != nil {
		return fmt.Errorf("error removing remote file %s: %w", remotePath, err)
	}
	return nil
}

// Close releases the sftp client and then the SSH transport. Only the first call does anything; every
// call returns the first error encountered.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		clientErr := s.client.Close()
		transportErr := s.transport.Close()
		if errors.Is(transportErr, net.ErrClosed) || errors.Is(transportErr, io.EOF) {
			transportErr = nil
		}
		if clientErr != nil {
			s.closeErr = fmt.Errorf("error closing sftp client: %w", clientErr)
		} else if transportErr != nil {
			s.closeErr = fmt.Errorf("error closing ssh transport: %w", transportErr)
		}
	})
	return s.closeErr
}
