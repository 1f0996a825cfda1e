package config

import "fmt"

// Validate checks config invariants that can't be expressed as zero-value
// defaults alone.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Covers.LRUCapacity <= 0 {
		return fmt.Errorf("config: covers.lru_capacity must be positive")
	}
	return nil
}
