package transfer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pennsieve/sftp-relay-service/relay/shared/objectstore"
	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
)

// Destination is where transferred objects are written, usually a *remote.Session.
type Destination interface {
	Create(name string) (io.WriteCloser, error)
}

type Engine struct {
	store      objectstore.Store
	mask       *Mask
	bufferSize int
	now        func() time.Time
	logger     *slog.Logger
}

func NewEngine(store objectstore.Store, mask *Mask, bufferSize int, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		mask:       mask,
		bufferSize: bufferSize,
		now:        time.Now,
		logger:     logger,
	}
}

// Transfer streams one object to dest through a buffer of the configured size. It never returns an error
// or panics for a failed item; the failure is in the Outcome. The remote file is closed on every path,
// and a transfer only succeeds once that close succeeded and the size checked out.
func (e *Engine) Transfer(ctx context.Context, dest Destination, ref trigger.SourceObjectRef) Outcome {
	outcome := Outcome{Ref: ref}
	fail := func(op string, err error) Outcome {
		outcome.Status = Failed
		outcome.Err = &Error{Op: op, Ref: ref, DestinationName: outcome.DestinationName, Err: err}
		return outcome
	}

	name, err := DestinationName(ref, e.mask, e.now())
	if err != nil {
		return fail(NameOp, err)
	}
	outcome.DestinationName = name
	logger := e.logger.With(ref.LogGroup(), slog.String("destination", name))

	object, err := e.store.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return fail(ReadOp, err)
	}
	defer object.Body.Close()

	remoteFile, err := dest.Create(name)
	if err != nil {
		return fail(CreateOp, err)
	}

	start := time.Now()
	logger.Debug("starting transfer", slog.Int64("contentLength", object.ContentLength))
	counter := &countingWriter{w: remoteFile}
	_, copyErr := io.CopyBuffer(counter, contextReader{ctx: ctx, r: object.Body}, make([]byte, e.bufferSize))
	outcome.BytesTransferred = counter.n
	closeErr := remoteFile.Close()
	if copyErr != nil {
		if closeErr != nil {
			logger.Warn("error closing remote file after failed copy", slog.Any("error", closeErr))
		}
		return fail(CopyOp, copyErr)
	}
	if closeErr != nil {
		return fail(CloseOp, closeErr)
	}
	if object.ContentLength >= 0 && counter.n != object.ContentLength {
		return fail(VerifyOp, &SizeMismatchError{Expected: object.ContentLength, Actual: counter.n})
	}

	outcome.Status = Succeeded
	logger.Info("transferred object",
		slog.Int64("bytes", counter.n),
		slog.Duration("elapsed", time.Since(start)))
	return outcome
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// contextReader stops a copy between reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
