// Package config is the single source of truth for pipeline configuration
// and file-system paths. Values come from environment variables (TIMEPREP_*
// prefix), an optional YAML file, and struct defaults, and are validated
// before a run starts.
package config
