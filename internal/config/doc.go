// Package config loads the hexagon process configuration.
//
// Configuration is resolved in layers, each overriding the previous one:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← Highest priority (applied by cmd)
//	├─────────────────────────────┤
//	│  3. HEXAGON_* variables     │
//	├─────────────────────────────┤
//	│  2. Config file             │  ← TOML or YAML, by extension
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # Basic Usage
//
//	cfg, err := config.Load("hexagon.toml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
