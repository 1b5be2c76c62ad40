package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueuePolicy is one queue's execution policy. A YAML queues file overrides
// the compiled-in defaults; queues absent from the file keep their defaults.
type QueuePolicy struct {
	Name         string        `yaml:"name"`
	Enabled      bool          `yaml:"enabled"`
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
}

// UnmarshalYAML accepts durations as strings ("500ms", "30m"), which yaml.v3
// does not decode into time.Duration on its own.
func (q *QueuePolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name         string `yaml:"name"`
		Enabled      bool   `yaml:"enabled"`
		Concurrency  int    `yaml:"concurrency"`
		PollInterval string `yaml:"poll_interval"`
		JobTimeout   string `yaml:"job_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	q.Name = raw.Name
	q.Enabled = raw.Enabled
	q.Concurrency = raw.Concurrency
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("queue %s: poll_interval: %w", raw.Name, err)
		}
		q.PollInterval = d
	}
	if raw.JobTimeout != "" {
		d, err := time.ParseDuration(raw.JobTimeout)
		if err != nil {
			return fmt.Errorf("queue %s: job_timeout: %w", raw.Name, err)
		}
		q.JobTimeout = d
	}
	return nil
}

type queuesFile struct {
	Queues []QueuePolicy `yaml:"queues"`
}

// DefaultQueuePolicies covers the four queues the system routes to. The
// large_files queue runs fewer, longer jobs; the ai queue throttles calls to
// the inference service.
func DefaultQueuePolicies() []QueuePolicy {
	return []QueuePolicy{
		{Name: "default", Enabled: true, Concurrency: 4, PollInterval: time.Second, JobTimeout: 5 * time.Minute},
		{Name: "large_files", Enabled: true, Concurrency: 2, PollInterval: 2 * time.Second, JobTimeout: 30 * time.Minute},
		{Name: "priority", Enabled: true, Concurrency: 4, PollInterval: 500 * time.Millisecond, JobTimeout: 2 * time.Minute},
		{Name: "ai", Enabled: true, Concurrency: 2, PollInterval: 2 * time.Second, JobTimeout: 10 * time.Minute},
	}
}

// LoadQueuePolicies merges the YAML queues file at path over the defaults.
// An empty path returns the defaults unchanged.
func LoadQueuePolicies(path string) ([]QueuePolicy, error) {
	policies := DefaultQueuePolicies()
	if path == "" {
		return enabledOnly(policies), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queues file: %w", err)
	}
	var parsed queuesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse queues file: %w", err)
	}

	byName := make(map[string]int, len(policies))
	for i, p := range policies {
		byName[p.Name] = i
	}
	for _, override := range parsed.Queues {
		if override.Name == "" {
			return nil, fmt.Errorf("queues file: entry missing name")
		}
		if i, ok := byName[override.Name]; ok {
			merged := policies[i]
			merged.Enabled = override.Enabled
			if override.Concurrency > 0 {
				merged.Concurrency = override.Concurrency
			}
			if override.PollInterval > 0 {
				merged.PollInterval = override.PollInterval
			}
			if override.JobTimeout > 0 {
				merged.JobTimeout = override.JobTimeout
			}
			policies[i] = merged
			continue
		}
		policies = append(policies, override)
	}
	return enabledOnly(policies), nil
}

func enabledOnly(policies []QueuePolicy) []QueuePolicy {
	out := make([]QueuePolicy, 0, len(policies))
	for _, p := range policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
