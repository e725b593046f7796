package awsconfig

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Factory loads the default AWS config once and hands out the same value afterwards. Tests call Set
// with a config pointing at local stand-ins before the handler is initialized.
type Factory struct {
	mu        sync.Mutex
	optFns    []func(*config.LoadOptions) error
	awsConfig *aws.Config
}

func NewFactory(optFns ...func(*config.LoadOptions) error) *Factory {
	return &Factory{optFns: optFns}
}

func (f *Factory) Get(ctx context.Context) (*aws.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.awsConfig == nil {
		cfg, err := config.LoadDefaultConfig(ctx, f.optFns...)
		if err != nil {
			return nil, fmt.Errorf("error loading default AWS config: %w", err)
		}
		f.awsConfig = &cfg
	}
	return f.awsConfig, nil
}

func (f *Factory) Set(awsConfig *aws.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awsConfig = awsConfig
}
