// Package file loads and saves chattail's TOML configuration file.
// The file is optional; every option has a default and can also be set on
// the command line.
package file
