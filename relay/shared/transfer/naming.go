package transfer

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pennsieve/sftp-relay-service/relay/shared/trigger"
)

// ExtractName returns the last path segment of an object key: "folder/sub/report.csv" is "report.csv".
// A key ending in "/" has an empty name.
func ExtractName(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

const (
	BucketPlaceholder    = "{bucket}"
	KeyPlaceholder       = "{key}"
	FilenamePlaceholder  = "{filename}"
	BasenamePlaceholder  = "{basename}"
	ExtPlaceholder       = "{ext}"
	DatePlaceholder      = "{date}"
	TimestampPlaceholder = "{timestamp}"
)

var knownPlaceholders = map[string]bool{
	BucketPlaceholder:    true,
	KeyPlaceholder:       true,
	FilenamePlaceholder:  true,
	BasenamePlaceholder:  true,
	ExtPlaceholder:       true,
	DatePlaceholder:      true,
	TimestampPlaceholder: true,
}

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// Mask is a destination filename template, for example "{date}_{basename}.{ext}".
type Mask struct {
	template string
}

// ParseMask checks a template. The template may not contain a path separator and may only use the known
// placeholders.
func ParseMask(template string) (*Mask, error) {
	if len(strings.TrimSpace(template)) == 0 {
		return nil, errors.New("filename mask is blank")
	}
	if strings.ContainsAny(template, `/\`) {
		return nil, fmt.Errorf("filename mask %q contains a path separator", template)
	}
	var unknown []string
	for _, placeholder := range placeholderPattern.FindAllString(template, -1) {
		if !knownPlaceholders[placeholder] {
			unknown = append(unknown, placeholder)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("filename mask %q uses unknown placeholders %v", template, unknown)
	}
	return &Mask{template: template}, nil
}

func (m *Mask) String() string {
	return m.template
}

// Apply fills in the template for ref. In {key} path separators are replaced by "_".
func (m *Mask) Apply(ref trigger.SourceObjectRef, now time.Time) string {
	filename := ExtractName(ref.Key)
	ext := path.Ext(filename)
	basename := strings.TrimSuffix(filename, ext)
	utc := now.UTC()
	replacer := strings.NewReplacer(
		BucketPlaceholder, ref.Bucket,
		KeyPlaceholder, strings.ReplaceAll(ref.Key, "/", "_"),
		FilenamePlaceholder, filename,
		BasenamePlaceholder, basename,
		ExtPlaceholder, strings.TrimPrefix(ext, "."),
		DatePlaceholder, utc.Format("2006-01-02"),
		TimestampPlaceholder, utc.Format("20060102T150405Z"),
	)
	return replacer.Replace(m.template)
}

// DestinationName is the remote name for ref: the key's last segment, or the mask applied to ref if
// mask is non-nil.
func DestinationName(ref trigger.SourceObjectRef, mask *Mask, now time.Time) (string, error) {
	name := ExtractName(ref.Key)
	if mask != nil {
		name = mask.Apply(ref, now)
	}
	switch {
	case len(name) == 0:
		return "", fmt.Errorf("no destination name for key %q", ref.Key)
	case name == "." || name == "..":
		return "", fmt.Errorf("invalid destination name %q for key %q", name, ref.Key)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("destination name %q for key %q contains a path separator", name, ref.Key)
	}
	return name, nil
}
