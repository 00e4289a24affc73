// Package config loads eventtail configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing, so secrets such as auth.api_key can stay out of the file.
package config
