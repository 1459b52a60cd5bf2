package osal

import (
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Modules.Queue || !cfg.Modules.Memory {
		t.Fatal("default config should enable all modules")
	}
	if cfg.MaxResources.ForKind(KindMutex) != 64 {
		t.Fatalf("default mutex cap = %d, want 64", cfg.MaxResources.ForKind(KindMutex))
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	yml := `
modules:
  task: true
  mutex: true
  semaphore: false
  queue: true
  event: true
  timer: true
  memory: true
max_resources:
  tasks: 8
  mutexes: 4
  semaphores: 4
  queues: 2
  events: 2
  timers: 2
pool_size: 4096
`
	cfg, err := ParseConfig([]byte(yml))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Modules.Semaphore {
		t.Fatal("semaphore module should be disabled")
	}
	if cfg.MaxResources.Queues != 2 {
		t.Fatalf("queue cap = %d, want 2", cfg.MaxResources.Queues)
	}
	if cfg.PoolSize != 4096 {
		t.Fatalf("pool size = %d, want 4096", cfg.PoolSize)
	}
	// Omitted fields keep defaults.
	if cfg.TickIntervalMicros != 1000 {
		t.Fatalf("tick interval = %d, want default 1000", cfg.TickIntervalMicros)
	}
	if !cfg.DebugHandleChecks {
		t.Fatal("debug handle checks should default on")
	}
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yml  string
		want string
	}{
		{"tiny pool", "pool_size: 16", "pool_size"},
		{"zero tick", "tick_interval_micros: 0", "tick_interval_micros"},
		{"zero cap", "max_resources:\n  timers: 0", "timer"},
		{"bad yaml", "pool_size: [", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.yml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 8192
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if parsed != cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("pool_size: 2048"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PoolSize != 2048 {
		t.Fatalf("pool size = %d, want 2048", cfg.PoolSize)
	}
}
