// Package config handles loading and validating StarterKit Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional dotenv file
//   - Overriding with STARTERKIT_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (database URL, MQTT password, InfluxDB token) should be
//     set via environment variables or the dotenv file, not committed YAML
//   - The config and dotenv files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Driver)
package config
