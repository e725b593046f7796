package transfer

import (
	"fmt"

	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
)

type Status string

const (
	Succeeded Status = "SUCCEEDED"
	Failed    Status = "FAILED"
)

// Outcome is the result of relaying one object. Err is set, and is a *Error, exactly when Status is Failed.
type Outcome struct {
	Ref              trigger.SourceObjectRef
	DestinationName  string
	Status           Status
	Err              error
	BytesTransferred int64
}

func (o Outcome) Succeeded() bool {
	return o.Status == Succeeded
}

// Operations reported in Error.Op.
const (
	NameOp   = "name destination"
	ReadOp   = "read source"
	CreateOp = "create remote file"
	CopyOp   = "copy"
	CloseOp  = "close remote file"
	VerifyOp = "verify"
)

// Error reports the step at which one transfer failed.
type Error struct {
	Op              string
	Ref             trigger.SourceObjectRef
	DestinationName string
	Err             error
}

func (e *Error) Error() string {
	if len(e.DestinationName) == 0 {
		return fmt.Sprintf("transfer of %s failed to %s: %v", e.Ref, e.Op, e.Err)
	}
	return fmt.Sprintf("transfer of %s to %s failed to %s: %v", e.Ref, e.DestinationName, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SizeMismatchError means the bytes written differ from the size the object store reported.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("expected %d bytes, transferred %d", e.Expected, e.Actual)
}
