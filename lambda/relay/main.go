package main

import (
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pennsieve/sftp-relay-service/relay/shared"
	"github.com/pennsieve/sftp-relay-service/relay/shared/config"
)

func main() {
	lambda.Start(handlerFor(config.TriggerSource(strings.ToLower(shared.OptionalFromEnvVar(config.TriggerSourceKey)))))
}

// handlerFor falls back to the S3 handler for an unknown source. The configuration check in
// initializeHandler then fails the first invocation with a *config.ConfigError.
func handlerFor(source config.TriggerSource) any {
	switch source {
	case config.SQSTrigger:
		return SQSRelayHandler
	case config.SNSTrigger:
		return SNSRelayHandler
	default:
		return S3RelayHandler
	}
}
