package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pennsieve/sftp-relay-service/relay/shared"
	"github.com/pennsieve/sftp-relay-service/relay/shared/transfer"
)

const (
	RemoteHostKey                 = "REMOTE_HOST"
	RemotePortKey                 = "REMOTE_PORT"
	RemoteUsernameKey             = "REMOTE_USERNAME"
	RemotePasswordKey             = "REMOTE_PASSWORD"
	RemotePrivateKeyKey           = "REMOTE_PRIVATE_KEY"
	RemotePrivateKeyPassphraseKey = "REMOTE_PRIVATE_KEY_PASSPHRASE"
	RemoteHostKeyKey              = "REMOTE_HOST_KEY"
	RemoteWorkDirKey              = "REMOTE_WORKDIR"
	RemoteFilenameMaskKey         = "REMOTE_FILENAME_MASK"
	RemoteConnectTimeoutKey       = "REMOTE_CONNECT_TIMEOUT"
	RemoteProbeKey                = "REMOTE_PROBE"
	SourceKeyIncludeKey           = "SOURCE_KEY_INCLUDE"
	ArchivePrefixKey              = "ARCHIVE_PREFIX"
	ArchiveBucketKey              = "ARCHIVE_BUCKET"
	TransferBufferBytesKey        = "TRANSFER_BUFFER_BYTES"
	FailOnItemErrorKey            = "FAIL_ON_ITEM_ERROR"
	TrackingTableKey              = "TRANSFER_TRACKING_TABLE"
	NotificationSenderKey         = "NOTIFICATION_SENDER"
	NotificationRecipientsKey     = "NOTIFICATION_RECIPIENTS"
	TriggerSourceKey              = "TRIGGER_SOURCE"
)

const (
	DefaultPort                = 22
	DefaultConnectTimeout      = 30 * time.Second
	DefaultTransferBufferBytes = 256 * 1024
)

// Credential is either a Password or a PrivateKey. It is resolved once, when the configuration is loaded.
type Credential interface {
	credential()
}

type Password string

func (Password) credential() {}

type PrivateKey struct {
	PEM        []byte
	Passphrase []byte
}

func (PrivateKey) credential() {}

type TriggerSource string

const (
	S3Trigger  TriggerSource = "s3"
	SQSTrigger TriggerSource = "sqs"
	SNSTrigger TriggerSource = "sns"
)

type Remote struct {
	Host       string
	Port       int
	Username   string
	Credential Credential
	// HostKey is an authorized_keys formatted public key. Empty means the server's host key is not verified.
	HostKey string
	WorkDir string
	// FilenameMask is nil when destination files keep the object's name.
	FilenameMask   *transfer.Mask
	ConnectTimeout time.Duration
	Probe          bool
}

func (r Remote) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type Archive struct {
	// Prefix enables archive markers for failed transfers when non-empty.
	Prefix string
	// Bucket receives the markers. Empty means the source object's bucket.
	Bucket string
}

func (a Archive) Enabled() bool {
	return len(a.Prefix) > 0
}

type Notification struct {
	Sender     string
	Recipients []string
}

func (n Notification) Enabled() bool {
	return len(n.Sender) > 0
}

type Config struct {
	Remote              Remote
	SourceKeyInclude    []string
	Archive             Archive
	TransferBufferBytes int
	FailOnItemError     bool
	TrackingTable       string
	Notification        Notification
	TriggerSource       TriggerSource
}

// LoadFromEnvironment reads the relay configuration from the process environment. Every problem found is
// reported as a *ConfigError; when there are several they are joined.
func LoadFromEnvironment() (*Config, error) {
	l := &loader{}
	cfg := &Config{
		Remote: Remote{
			Host:           l.required(RemoteHostKey),
			Port:           l.port(),
			Username:       l.required(RemoteUsernameKey),
			Credential:     l.credential(),
			HostKey:        shared.OptionalFromEnvVar(RemoteHostKeyKey),
			WorkDir:        shared.OptionalFromEnvVar(RemoteWorkDirKey),
			FilenameMask:   l.mask(),
			ConnectTimeout: l.duration(RemoteConnectTimeoutKey, DefaultConnectTimeout),
			Probe:          l.bool(RemoteProbeKey),
		},
		SourceKeyInclude: l.includes(),
		Archive: Archive{
			Prefix: shared.OptionalFromEnvVar(ArchivePrefixKey),
			Bucket: shared.OptionalFromEnvVar(ArchiveBucketKey),
		},
		TransferBufferBytes: l.positiveInt(TransferBufferBytesKey, DefaultTransferBufferBytes),
		FailOnItemError:     l.bool(FailOnItemErrorKey),
		TrackingTable:       shared.OptionalFromEnvVar(TrackingTableKey),
		Notification:        l.notification(),
		TriggerSource:       l.triggerSource(),
	}
	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigError reports a missing or invalid configuration value. It is fatal: the invocation
// stops before any I/O is attempted.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type loader struct {
	errs []error
}

func (l *loader) fail(key string, err error) {
	l.errs = append(l.errs, &ConfigError{Key: key, Err: err})
}

func (l *loader) required(key string) string {
	value, err := shared.NonEmptyFromEnvVar(key)
	if err != nil {
		l.fail(key, err)
	}
	return value
}

func (l *loader) port() int {
	port, err := shared.IntFromEnvVar(RemotePortKey, DefaultPort)
	if err != nil {
		l.fail(RemotePortKey, err)
		return 0
	}
	if port < 1 || port > 65535 {
		l.fail(RemotePortKey, fmt.Errorf("port %d out of range", port))
	}
	return port
}

// credential prefers the password when both a password and a private key are configured.
func (l *loader) credential() Credential {
	if password := os.Getenv(RemotePasswordKey); len(password) > 0 {
		return Password(password)
	}
	if key := shared.OptionalFromEnvVar(RemotePrivateKeyKey); len(key) > 0 {
		var passphrase []byte
		if p := shared.OptionalFromEnvVar(RemotePrivateKeyPassphraseKey); len(p) > 0 {
			passphrase = []byte(p)
		}
		// escaped newlines are accepted so the PEM fits in a single line env var
		return PrivateKey{PEM: []byte(strings.ReplaceAll(key, `\n`, "\n")), Passphrase: passphrase}
	}
	l.fail(RemotePasswordKey, fmt.Errorf("one of %s or %s must be set", RemotePasswordKey, RemotePrivateKeyKey))
	return nil
}

func (l *loader) mask() *transfer.Mask {
	template := os.Getenv(RemoteFilenameMaskKey)
	if len(template) == 0 {
		return nil
	}
	mask, err := transfer.ParseMask(template)
	if err != nil {
		l.fail(RemoteFilenameMaskKey, err)
	}
	return mask
}

func (l *loader) includes() []string {
	patterns := shared.ListFromEnvVar(SourceKeyIncludeKey)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			l.fail(SourceKeyIncludeKey, fmt.Errorf("invalid pattern: [%s]", pattern))
		}
	}
	return patterns
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	d, err := shared.DurationFromEnvVar(key, defaultValue)
	if err != nil {
		l.fail(key, err)
	} else if d <= 0 {
		l.fail(key, fmt.Errorf("duration %s must be positive", d))
	}
	return d
}

func (l *loader) bool(key string) bool {
	b, err := shared.BoolFromEnvVar(key)
	if err != nil {
		l.fail(key, err)
	}
	return b
}

func (l *loader) positiveInt(key string, defaultValue int) int {
	i, err := shared.IntFromEnvVar(key, defaultValue)
	if err != nil {
		l.fail(key, err)
	} else if i <= 0 {
		l.fail(key, fmt.Errorf("value %d must be positive", i))
	}
	return i
}

func (l *loader) notification() Notification {
	n := Notification{
		Sender:     shared.OptionalFromEnvVar(NotificationSenderKey),
		Recipients: shared.ListFromEnvVar(NotificationRecipientsKey),
	}
	if n.Enabled() != (len(n.Recipients) > 0) {
		l.fail(NotificationRecipientsKey, fmt.Errorf("%s and %s must be set together", NotificationSenderKey, NotificationRecipientsKey))
	}
	return n
}

func (l *loader) triggerSource() TriggerSource {
	value := strings.ToLower(shared.OptionalFromEnvVar(TriggerSourceKey))
	switch TriggerSource(value) {
	case "", S3Trigger:
		return S3Trigger
	case SQSTrigger, SNSTrigger:
		return TriggerSource(value)
	default:
		l.fail(TriggerSourceKey, fmt.Errorf("unknown trigger source: [%s]", value))
		return ""
	}
}
