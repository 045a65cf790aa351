// Package config handles loading and validating pm8sim configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Command-line flags sit above all three: cmd/pm8sim applies them to the
// loaded Config and then calls Validate.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
//	if err != nil {
//	    return err
//	}
//	cfg.Serial.Port = "/dev/pts/3"
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
