// Package config loads the concierge client configuration from YAML,
// expanding ${VAR} environment references and parsing duration strings.
// The live feed is an explicit boolean here; whether to subscribe is a
// deployment decision, never inferred from the runtime environment.
package config
