package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQueuesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQueuePoliciesDefaults(t *testing.T) {
	policies, err := LoadQueuePolicies("")
	require.NoError(t, err)
	require.Len(t, policies, 4)

	byName := map[string]QueuePolicy{}
	for _, p := range policies {
		byName[p.Name] = p
	}

	assert.Equal(t, 4, byName["default"].Concurrency)
	assert.Equal(t, time.Second, byName["default"].PollInterval)
	assert.Equal(t, 30*time.Minute, byName["large_files"].JobTimeout)
	assert.Equal(t, 500*time.Millisecond, byName["priority"].PollInterval)
	assert.Equal(t, 2, byName["ai"].Concurrency)
}

func TestLoadQueuePoliciesOverride(t *testing.T) {
	path := writeQueuesFile(t, `
queues:
  - name: default
    enabled: true
    concurrency: 8
  - name: large_files
    enabled: false
`)

	policies, err := LoadQueuePolicies(path)
	require.NoError(t, err)

	byName := map[string]QueuePolicy{}
	for _, p := range policies {
		byName[p.Name] = p
	}

	require.Contains(t, byName, "default")
	assert.Equal(t, 8, byName["default"].Concurrency)
	// Fields absent from the override keep their defaults.
	assert.Equal(t, time.Second, byName["default"].PollInterval)
	assert.Equal(t, 5*time.Minute, byName["default"].JobTimeout)

	assert.NotContains(t, byName, "large_files", "disabled queues are filtered out")
	assert.Contains(t, byName, "priority")
	assert.Contains(t, byName, "ai")
}

func TestLoadQueuePoliciesUnknownQueueAppended(t *testing.T) {
	path := writeQueuesFile(t, `
queues:
  - name: bulk_import
    enabled: true
    concurrency: 1
    poll_interval: 5s
    job_timeout: 1h
`)

	policies, err := LoadQueuePolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 5)

	var bulk *QueuePolicy
	for i := range policies {
		if policies[i].Name == "bulk_import" {
			bulk = &policies[i]
		}
	}
	require.NotNil(t, bulk)
	assert.Equal(t, 1, bulk.Concurrency)
	assert.Equal(t, 5*time.Second, bulk.PollInterval)
	assert.Equal(t, time.Hour, bulk.JobTimeout)
}

func TestLoadQueuePoliciesErrors(t *testing.T) {
	_, err := LoadQueuePolicies(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadQueuePolicies(writeQueuesFile(t, "queues: [not valid"))
	assert.Error(t, err)

	_, err = LoadQueuePolicies(writeQueuesFile(t, "queues:\n  - enabled: true\n"))
	assert.Error(t, err, "entries must carry a name")
}
