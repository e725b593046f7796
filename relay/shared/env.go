package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// NonEmptyFromEnvVar looks up value of env var with the given key and returns an error if the value is not set or
// is empty. Otherwise, returns the value.
func NonEmptyFromEnvVar(key string) (string, error) {
	if value, set := os.LookupEnv(key); !set {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	} else if len(value) == 0 {
		return "", fmt.Errorf("empty value set for environment variable %s", key)
	} else {
		return value, nil
	}
}

// OptionalFromEnvVar returns the value of the env var with the given key, or the empty string if it is unset.
// Surrounding whitespace is trimmed.
func OptionalFromEnvVar(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// IntFromEnvVar returns the integer value of the env var with the given key, or defaultValue if it is unset or empty.
func IntFromEnvVar(key string, defaultValue int) (int, error) {
	value := OptionalFromEnvVar(key)
	if len(value) == 0 {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("error converting env var %s value [%s] to int: %w", key, value, err)
	}
	return i, nil
}

// BoolFromEnvVar returns the boolean value of the env var with the given key, or false if it is unset or empty.
func BoolFromEnvVar(key string) (bool, error) {
	value := OptionalFromEnvVar(key)
	if len(value) == 0 {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("error converting env var %s value [%s] to bool: %w", key, value, err)
	}
	return b, nil
}

// DurationFromEnvVar returns the time.Duration value of the env var with the given key, or defaultValue if it is
// unset or empty.
func DurationFromEnvVar(key string, defaultValue time.Duration) (time.Duration, error) {
	value := OptionalFromEnvVar(key)
	if len(value) == 0 {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("error converting env var %s value [%s] to duration: %w", key, value, err)
	}
	return d, nil
}

// ListFromEnvVar splits the comma separated value of the env var with the given key. Empty elements are dropped.
func ListFromEnvVar(key string) []string {
	var values []string
	for _, v := range strings.Split(OptionalFromEnvVar(key), ",") {
		if v = strings.TrimSpace(v); len(v) > 0 {
			values = append(values, v)
		}
	}
	return values
}
