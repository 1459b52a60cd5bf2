package osal

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config selects which subsystems are compiled into a System and sizes the
// shared resources. The zero value is not usable; start from DefaultConfig.
type Config struct {
	// Modules toggles each subsystem. A disabled subsystem's constructors
	// return StatusNotInit.
	Modules ModuleConfig `yaml:"modules"`

	// MaxResources caps live instances per kind; exceeding a cap makes the
	// create return StatusNoMemory.
	MaxResources ResourceCaps `yaml:"max_resources"`

	// DebugHandleChecks enables generation validation on handle lookups.
	// When false, validation degrades to a nonzero/bounds/kind check. The
	// release mode trades stale-handle detection for a shorter lookup path;
	// kind confusion is rejected in both modes.
	DebugHandleChecks bool `yaml:"debug_handle_checks"`

	// MemoryTracking enables the allocator's live-block map, which backs
	// CheckIntegrity and double-free detection.
	MemoryTracking bool `yaml:"memory_tracking"`

	// Statistics enables count/watermark accounting.
	Statistics bool `yaml:"statistics"`

	// PoolSize is the allocator pool size in bytes.
	PoolSize uint32 `yaml:"pool_size"`

	// TickIntervalMicros is the native backend's tick period. The
	// cooperative backend ignores it and runs on virtual or injected ticks.
	TickIntervalMicros uint32 `yaml:"tick_interval_micros"`

	// StackLimitBytes is the per-task stack budget. A task whose sampled
	// stack depth exceeds it raises StatusStackOverflow through the fault
	// callback. Zero disables the check.
	StackLimitBytes uint32 `yaml:"stack_limit_bytes"`
}

// ModuleConfig enables or disables individual subsystems.
type ModuleConfig struct {
	Task      bool `yaml:"task"`
	Mutex     bool `yaml:"mutex"`
	Semaphore bool `yaml:"semaphore"`
	Queue     bool `yaml:"queue"`
	Event     bool `yaml:"event"`
	Timer     bool `yaml:"timer"`
	Memory    bool `yaml:"memory"`
}

// ResourceCaps holds the per-kind live-instance limits.
type ResourceCaps struct {
	Tasks      uint32 `yaml:"tasks"`
	Mutexes    uint32 `yaml:"mutexes"`
	Semaphores uint32 `yaml:"semaphores"`
	Queues     uint32 `yaml:"queues"`
	Events     uint32 `yaml:"events"`
	Timers     uint32 `yaml:"timers"`
}

// ForKind returns the cap for one resource kind.
func (r ResourceCaps) ForKind(k Kind) uint32 {
	switch k {
	case KindTask:
		return r.Tasks
	case KindMutex:
		return r.Mutexes
	case KindSemaphore:
		return r.Semaphores
	case KindQueue:
		return r.Queues
	case KindEvent:
		return r.Events
	case KindTimer:
		return r.Timers
	}
	return 0
}

// DefaultConfig returns a configuration with every module enabled, 64
// instances per kind, a 64 KiB pool, debug validation on, a 1ms tick, and a
// 1 MiB per-task stack budget.
func DefaultConfig() Config {
	return Config{
		Modules: ModuleConfig{
			Task: true, Mutex: true, Semaphore: true,
			Queue: true, Event: true, Timer: true, Memory: true,
		},
		MaxResources: ResourceCaps{
			Tasks: 64, Mutexes: 64, Semaphores: 64,
			Queues: 64, Events: 64, Timers: 64,
		},
		DebugHandleChecks:  true,
		MemoryTracking:     true,
		Statistics:         true,
		PoolSize:           64 * 1024,
		TickIntervalMicros: 1000,
		StackLimitBytes:    1 << 20,
	}
}

// LoadConfig reads a YAML configuration, applying it over DefaultConfig so
// omitted fields keep their defaults.
func LoadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes over DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.Modules.Memory && c.PoolSize < 256 {
		return fmt.Errorf("pool_size %d too small, need at least 256 bytes", c.PoolSize)
	}
	if c.TickIntervalMicros == 0 {
		return fmt.Errorf("tick_interval_micros must be positive")
	}
	for k := Kind(0); k < KindCount; k++ {
		if c.MaxResources.ForKind(k) == 0 {
			return fmt.Errorf("max_resources for kind %s must be positive", k)
		}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
