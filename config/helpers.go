package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv returns the value of the environment variable or the default when
// unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt parses an integer environment variable, falling back to the
// default on absence or parse failure.
func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getFloat64 parses a float environment variable.
func getFloat64(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getBool parses a boolean environment variable ("true", "1", "yes" are
// truthy).
func getBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// getDuration parses a duration environment variable using
// time.ParseDuration syntax. The default must itself be parseable.
func getDuration(key, defaultValue string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		parsed, _ = time.ParseDuration(defaultValue)
	}
	return parsed
}

// getIntList parses a comma-separated list of integers. Invalid elements
// are skipped; an empty variable yields the default.
func getIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if parsed, err := strconv.Atoi(part); err == nil {
			result = append(result, parsed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
