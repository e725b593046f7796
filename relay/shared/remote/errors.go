package remote

import "fmt"

// ConnectionError is any failure to establish a usable session: TCP connect, SSH handshake or
// authentication, starting the sftp subsystem, or checking the working directory. It ends the invocation
// before any item is attempted.
type ConnectionError struct {
	Op      string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error connecting to %s: %s: %v", e.Address, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
