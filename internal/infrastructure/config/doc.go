// Package config handles loading and validating Gray Logic Valves configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and cross references (valve peers)
//   - Default value handling, including per-valve defaults
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, v := range cfg.Valves.Entities {
//	    fmt.Println(v.ID, v.Type)
//	}
package config
