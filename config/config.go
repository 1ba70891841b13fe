// Package config loads EventLoopConfig, GraphConfig, and SwarmConfig values
// from YAML, the way operators tune Agent/Graph/Swarm behavior without a
// recompile. Bus and Telemetry are wired by the caller after loading: they
// are runtime collaborators, not serializable settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/agentcore/eventloop"
	"github.com/agentcore/agentcore/swarm"
)

type (
	// EventLoopConfig is the YAML-serializable subset of eventloop.Config.
	// Durations are strings (e.g. "4s", "60s") parsed via time.ParseDuration
	// rather than raw nanosecond integers, matching how duration fields
	// round-trip through YAML elsewhere in the pack.
	EventLoopConfig struct {
		MaxAttempts   int    `yaml:"max_attempts"`
		InitialDelay  string `yaml:"initial_delay"`
		MaxDelay      string `yaml:"max_delay"`
		MaxCycleDepth int    `yaml:"max_cycle_depth"`
		Parallel      bool   `yaml:"parallel"`
	}

	// GraphConfig is presently empty: graph.Config carries only runtime
	// collaborators (Bus, Telemetry), nothing YAML-serializable. It is kept
	// as a named type so callers have a stable symbol to load into as the
	// graph runner's configuration surface grows.
	GraphConfig struct{}

	// SwarmConfig is the YAML-serializable subset of swarm.Config.
	SwarmConfig struct {
		MaxHandoffs         int    `yaml:"max_handoffs"`
		MaxIterations       int    `yaml:"max_iterations"`
		ExecutionTimeout    string `yaml:"execution_timeout"`
		NodeTimeout         string `yaml:"node_timeout"`
		RepetitionWindow    int    `yaml:"repetition_window"`
		RepetitionMinUnique int    `yaml:"repetition_min_unique"`
	}

	// Document is the top-level shape of a single config file covering all
	// three runner configs, each optional.
	Document struct {
		EventLoop *EventLoopConfig `yaml:"event_loop"`
		Graph     *GraphConfig     `yaml:"graph"`
		Swarm     *SwarmConfig     `yaml:"swarm"`
	}
)

// ToEventLoopConfig converts c to eventloop.Config. Bus, KV, Telemetry, and
// RateLimiter are not part of eventloop.Config; they live on eventloop.Agent
// and are set there by the caller.
// Empty duration strings convert to zero, letting eventloop.Config.WithDefaults
// fill them in.
func (c EventLoopConfig) ToEventLoopConfig() (eventloop.Config, error) {
	initialDelay, err := parseDuration(c.InitialDelay)
	if err != nil {
		return eventloop.Config{}, fmt.Errorf("event_loop.initial_delay: %w", err)
	}
	maxDelay, err := parseDuration(c.MaxDelay)
	if err != nil {
		return eventloop.Config{}, fmt.Errorf("event_loop.max_delay: %w", err)
	}
	return eventloop.Config{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  initialDelay,
		MaxDelay:      maxDelay,
		MaxCycleDepth: c.MaxCycleDepth,
		Parallel:      c.Parallel,
	}, nil
}

// ToSwarmConfig converts c to swarm.Config, leaving Bus and Telemetry at
// their zero values for the caller to set.
func (c SwarmConfig) ToSwarmConfig() (swarm.Config, error) {
	executionTimeout, err := parseDuration(c.ExecutionTimeout)
	if err != nil {
		return swarm.Config{}, fmt.Errorf("swarm.execution_timeout: %w", err)
	}
	nodeTimeout, err := parseDuration(c.NodeTimeout)
	if err != nil {
		return swarm.Config{}, fmt.Errorf("swarm.node_timeout: %w", err)
	}
	return swarm.Config{
		MaxHandoffs:         c.MaxHandoffs,
		MaxIterations:       c.MaxIterations,
		ExecutionTimeout:    executionTimeout,
		NodeTimeout:         nodeTimeout,
		RepetitionWindow:    c.RepetitionWindow,
		RepetitionMinUnique: c.RepetitionMinUnique,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Load reads and parses a config document from path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a config document from raw YAML bytes.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("config: parse: %w", err)
	}
	return doc, nil
}
