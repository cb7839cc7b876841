// Package config handles loading and validating IR Bridge core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (IRBRIDGE_* prefix)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens, JWT secret) should be
//     set via environment variables, not committed to the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dispatch.RequestExpiry())
package config
