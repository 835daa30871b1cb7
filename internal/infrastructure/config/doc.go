// Package config loads and validates dtuhub configuration.
//
// Values come from three layers, later ones winning:
//   - built-in defaults
//   - a YAML file (path from DTUHUB_CONFIG, default configs/config.yaml)
//   - DTUHUB_<SECTION>_<KEY> environment variables
//
// Secrets (MQTT password, JWT secret, InfluxDB token) should be supplied
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Gateway.RequestTimeout()
package config
