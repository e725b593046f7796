package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed html/transfer-failures.html
var transferFailuresTemplateFS embed.FS

var transferFailuresTemplate *template.Template

type FailedTransfer struct {
	Source        string
	Destination   string
	Reason        string
	ArchiveMarker string
}

// FailureSummary describes the failed items of one invocation.
type FailureSummary struct {
	InvocationID  string
	AWSRequestID  string
	LogStreamName string
	RemoteAddress string
	Attempted     int
	NotAttempted  int
	Failures      []FailedTransfer
}

func LoadTemplates() (err error) {
	transferFailuresTemplate, err = template.ParseFS(transferFailuresTemplateFS, "html/transfer-failures.html")
	return err
}

func TransferFailuresEmailBody(summary FailureSummary) (string, error) {
	if transferFailuresTemplate == nil {
		return "", fmt.Errorf("templates not loaded")
	}
	var body bytes.Buffer
	if err := transferFailuresTemplate.Execute(&body, summary); err != nil {
		return "", fmt.Errorf("error executing transfer failures template: %w", err)
	}
	return body.String(), nil
}
