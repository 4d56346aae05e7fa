// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"strings"
	"testing"
)

// SkipIfNoNetwork skips the test if SPARK_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on local TCP ports, which sandboxed
// environments may not allow.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("SPARK_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: SPARK_TEST_SKIP_NETWORK is set")
	}
}

// RedisURL returns SPARK_TEST_REDIS_URL or skips the test when it is unset.
func RedisURL(t *testing.T) string {
	t.Helper()
	SkipIfNoNetwork(t)
	url := strings.TrimSpace(os.Getenv("SPARK_TEST_REDIS_URL"))
	if url == "" {
		t.Skip("skipping redis test: SPARK_TEST_REDIS_URL is not set")
	}
	return url
}
