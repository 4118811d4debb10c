package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		expected     string
	}{
		{
			name:         "environment variable set",
			envValue:     "https://ipoipo.cn",
			defaultValue: "default",
			expected:     "https://ipoipo.cn",
		},
		{
			name:         "empty environment variable returns default",
			envValue:     "",
			defaultValue: "fallback",
			expected:     "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPORTFETCHER_TEST_ENV", tt.envValue)
			assert.Equal(t, tt.expected, GetEnv("REPORTFETCHER_TEST_ENV", tt.defaultValue))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{name: "valid integer", envValue: "42", expected: 42},
		{name: "surrounding spaces", envValue: " 7 ", expected: 7},
		{name: "invalid integer returns default", envValue: "abc", expected: 3},
		{name: "unset returns default", envValue: "", expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPORTFETCHER_TEST_INT", tt.envValue)
			assert.Equal(t, tt.expected, GetEnvInt("REPORTFETCHER_TEST_INT", 3))
		})
	}
}

func TestGetEnvInt64(t *testing.T) {
	t.Setenv("REPORTFETCHER_TEST_INT64", "5368709120")
	assert.Equal(t, int64(5368709120), GetEnvInt64("REPORTFETCHER_TEST_INT64", 1))

	t.Setenv("REPORTFETCHER_TEST_INT64", "5GB")
	assert.Equal(t, int64(1), GetEnvInt64("REPORTFETCHER_TEST_INT64", 1))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{name: "true string", envValue: "true", defaultValue: false, expected: true},
		{name: "numeric one", envValue: "1", defaultValue: false, expected: true},
		{name: "false string", envValue: "FALSE", defaultValue: true, expected: false},
		{name: "invalid returns default", envValue: "yes", defaultValue: true, expected: true},
		{name: "unset returns default", envValue: "", defaultValue: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPORTFETCHER_TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.expected, GetEnvBool("REPORTFETCHER_TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{name: "seconds", envValue: "300s", expected: 300 * time.Second},
		{name: "composite", envValue: "1m30s", expected: 90 * time.Second},
		{name: "invalid returns default", envValue: "soon", expected: 2 * time.Second},
		{name: "unset returns default", envValue: "", expected: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPORTFETCHER_TEST_DURATION", tt.envValue)
			assert.Equal(t, tt.expected, GetEnvDuration("REPORTFETCHER_TEST_DURATION", 2*time.Second))
		})
	}
}

func TestGetEnvFloat64(t *testing.T) {
	t.Setenv("REPORTFETCHER_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, GetEnvFloat64("REPORTFETCHER_TEST_FLOAT", 1.0))

	t.Setenv("REPORTFETCHER_TEST_FLOAT", "x")
	assert.Equal(t, 1.0, GetEnvFloat64("REPORTFETCHER_TEST_FLOAT", 1.0))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("REPORTFETCHER_TEST_LIST", "HK, ,JP,")
	assert.Equal(t, []string{"HK", "JP"}, GetEnvList("REPORTFETCHER_TEST_LIST", nil))

	t.Setenv("REPORTFETCHER_TEST_LIST", " , ")
	assert.Equal(t, []string{"SG"}, GetEnvList("REPORTFETCHER_TEST_LIST", []string{"SG"}))
}
