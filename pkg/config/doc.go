// Package config loads taskflow configuration.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// TASKFLOW_CONFIG_FILE, then TASKFLOW_* environment variables. The result is
// validated before use.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Watch reloads the YAML file when it changes. The server uses it to apply a
// new log level without a restart; other settings take effect on restart.
package config
