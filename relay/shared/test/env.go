package test

import "testing"

type EnvironmentVariables struct {
	env map[string]string
}

func NewEnvironmentVariables() *EnvironmentVariables {
	return &EnvironmentVariables{map[string]string{}}
}

func (e *EnvironmentVariables) With(key, value string) *EnvironmentVariables {
	e.env[key] = value
	return e
}

// Setenv sets every variable for the duration of the test. Empty values are set, not skipped, so
// a test can check how an empty value is treated.
func (e *EnvironmentVariables) Setenv(t *testing.T) {
	for k, v := range e.env {
		t.Setenv(k, v)
	}
}
