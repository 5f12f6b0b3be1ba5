// Package config handles loading and validating the Bambi controller configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Deriving printer MQTT settings (broker host, "bblp" user, access code)
//   - Validation of required fields
//
// Security Considerations:
//   - The printer access code should be set via BAMBI_PRINTER_ACCESS_CODE
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Printer.Serial)
package config
