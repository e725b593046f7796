package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pennsieve/sftp-relay-service/relay/shared/objectstore"
)

// EventLog records the order of calls across the in-memory doubles, so tests can check for example
// that a source object is only deleted after its remote file was closed.
type EventLog struct {
	mu     sync.Mutex
	events []string
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Record(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *EventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// IndexOf returns the position of the first occurrence of event, or -1.
func (l *EventLog) IndexOf(event string) int {
	for i, e := range l.Events() {
		if e == event {
			return i
		}
	}
	return -1
}

func (l *EventLog) Count(event string) int {
	count := 0
	for _, e := range l.Events() {
		if e == event {
			count++
		}
	}
	return count
}

// MemoryStore is an objectstore.Store holding objects in a map. Events recorded are
// "get <bucket>/<key>", "delete <bucket>/<key>" and "put <bucket>/<key>".
type MemoryStore struct {
	events          *EventLog
	mu              sync.Mutex
	objects         map[S3Location][]byte
	reportedLengths map[S3Location]int64
	getErrs         map[S3Location]error
	deleteErrs      map[S3Location]error
	putErr          error
}

var _ objectstore.Store = (*MemoryStore)(nil)

func NewMemoryStore(events *EventLog) *MemoryStore {
	return &MemoryStore{
		events:          events,
		objects:         map[S3Location][]byte{},
		reportedLengths: map[S3Location]int64{},
		getErrs:         map[S3Location]error{},
		deleteErrs:      map[S3Location]error{},
	}
}

func (m *MemoryStore) WithObject(bucket, key, content string) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[S3Location{Bucket: bucket, Key: key}] = []byte(content)
	return m
}

// WithReportedLength makes Get report length instead of the true size. -1 reports an unknown length.
func (m *MemoryStore) WithReportedLength(bucket, key string, length int64) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportedLengths[S3Location{Bucket: bucket, Key: key}] = length
	return m
}

func (m *MemoryStore) FailingGet(bucket, key string, err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs[S3Location{Bucket: bucket, Key: key}] = err
	return m
}

func (m *MemoryStore) FailingDelete(bucket, key string, err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[S3Location{Bucket: bucket, Key: key}] = err
	return m
}

func (m *MemoryStore) FailingPut(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
	return m
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) (*objectstore.Object, error) {
	m.events.Record("get %s/%s", bucket, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	location := S3Location{Bucket: bucket, Key: key}
	if err := m.getErrs[location]; err != nil {
		return nil, &objectstore.Error{Op: "GetObject", Bucket: bucket, Key: key, Err: err}
	}
	content, ok := m.objects[location]
	if !ok {
		return nil, &objectstore.Error{Op: "GetObject", Bucket: bucket, Key: key, Kind: objectstore.ErrNotFound, Err: errors.New("NoSuchKey")}
	}
	length := int64(len(content))
	if reported, ok := m.reportedLengths[location]; ok {
		length = reported
	}
	return &objectstore.Object{Body: io.NopCloser(bytes.NewReader(content)), ContentLength: length}, nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.events.Record("delete %s/%s", bucket, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	location := S3Location{Bucket: bucket, Key: key}
	if err := m.deleteErrs[location]; err != nil {
		return &objectstore.Error{Op: "DeleteObject", Bucket: bucket, Key: key, Err: err}
	}
	delete(m.objects, location)
	return nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, body io.Reader) error {
	m.events.Record("put %s/%s", bucket, key)
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return &objectstore.Error{Op: "PutObject", Bucket: bucket, Key: key, Err: m.putErr}
	}
	m.objects[S3Location{Bucket: bucket, Key: key}] = content
	return nil
}

func (m *MemoryStore) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[S3Location{Bucket: bucket, Key: key}]
	return ok
}

func (m *MemoryStore) Content(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.objects[S3Location{Bucket: bucket, Key: key}])
}

type writeFailure struct {
	after int
	err   error
}

// MemorySession stands in for a remote session. Events recorded are "create <name>",
// "close-file <name>" and "close-session".
type MemorySession struct {
	events        *EventLog
	mu            sync.Mutex
	files         map[string]*bytes.Buffer
	createErrs    map[string]error
	writeFailures map[string]writeFailure
	closeFileErrs map[string]error
	closeErr      error
	closeCount    int
}

func NewMemorySession(events *EventLog) *MemorySession {
	return &MemorySession{
		events:        events,
		files:         map[string]*bytes.Buffer{},
		createErrs:    map[string]error{},
		writeFailures: map[string]writeFailure{},
		closeFileErrs: map[string]error{},
	}
}

func (s *MemorySession) FailingCreate(name string, err error) *MemorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErrs[name] = err
	return s
}

// FailingWrite makes writes to name fail with err once more than after bytes have been written.
func (s *MemorySession) FailingWrite(name string, after int, err error) *MemorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFailures[name] = writeFailure{after: after, err: err}
	return s
}

func (s *MemorySession) FailingFileClose(name string, err error) *MemorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFileErrs[name] = err
	return s
}

func (s *MemorySession) FailingClose(err error) *MemorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr = err
	return s
}

func (s *MemorySession) Create(name string) (io.WriteCloser, error) {
	s.events.Record("create %s", name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErrs[name]; err != nil {
		return nil, err
	}
	buffer := &bytes.Buffer{}
	s.files[name] = buffer
	file := &memoryFile{session: s, name: name, buffer: buffer, closeErr: s.closeFileErrs[name]}
	if failure, ok := s.writeFailures[name]; ok {
		file.failure = &failure
	}
	return file, nil
}

func (s *MemorySession) Close() error {
	s.events.Record("close-session")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return s.closeErr
}

func (s *MemorySession) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func (s *MemorySession) File(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buffer, ok := s.files[name]
	if !ok {
		return "", false
	}
	return buffer.String(), true
}

type memoryFile struct {
	session  *MemorySession
	name     string
	buffer   *bytes.Buffer
	failure  *writeFailure
	closeErr error
}

func (f *memoryFile) Write(p []byte) (int, error) {
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	if f.failure != nil && f.buffer.Len()+len(p) > f.failure.after {
		n := f.failure.after - f.buffer.Len()
		if n > 0 {
			f.buffer.Write(p[:n])
		} else {
			n = 0
		}
		return n, f.failure.err
	}
	return f.buffer.Write(p)
}

func (f *memoryFile) Close() error {
	f.session.events.Record("close-file %s", f.name)
	return f.closeErr
}
