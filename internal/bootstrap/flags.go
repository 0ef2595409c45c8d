package bootstrap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/target/transcode-dispatch/config"
)

// FlagOverlay holds command-line overrides applied on top of the
// environment configuration. Nil fields were not given on the command line.
type FlagOverlay struct {
	APIKey       *string
	DatabasePath *string
	Port         *int
	ShowHelp     bool
}

// ParseFlags scans args (without the program name) for recognized flags.
// Both "--flag value" and "--flag=value" forms are accepted. Unrecognized
// arguments are ignored so wrapper scripts can pass their own switches
// through unchanged.
func ParseFlags(args []string) (FlagOverlay, error) {
	var overlay FlagOverlay

	for i := 0; i < len(args); i++ {
		name, value, hasValue := splitFlag(args[i])

		switch name {
		case "--help", "-h":
			overlay.ShowHelp = true
			continue
		case "--api-key", "--database", "--port":
		default:
			continue
		}

		if !hasValue {
			if i+1 >= len(args) {
				return overlay, fmt.Errorf("flag %s requires a value", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--api-key":
			overlay.APIKey = &value
		case "--database":
			overlay.DatabasePath = &value
		case "--port":
			port, err := parsePort(value)
			if err != nil {
				return overlay, err
			}
			overlay.Port = &port
		}
	}

	return overlay, nil
}

func splitFlag(arg string) (name, value string, hasValue bool) {
	name, value, hasValue = strings.Cut(arg, "=")
	return name, value, hasValue
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be an integer between 1 and 65535", value)
	}
	return port, nil
}

// Apply merges the overlay into the loaded configuration.
func (f FlagOverlay) Apply(cfg *config.AppConfig) {
	if cfg == nil {
		return
	}
	if f.APIKey != nil {
		cfg.Auth.APIKey = *f.APIKey
	}
	if f.DatabasePath != nil {
		cfg.Store.DatabasePath = *f.DatabasePath
	}
	if f.Port != nil {
		cfg.HTTP.Addr = fmt.Sprintf(":%d", *f.Port)
	}
}

// Usage returns the help text for the server binary.
func Usage() string {
	return `Usage: dispatchd [flags]

Transcoding dispatch coordinator. Configuration comes from environment
variables; flags override the environment.

Flags:
  --api-key <secret>   shared secret required in the X-API-Key header
  --database <path>    persist state in a SQLite database at <path>
                       (default: in-memory store with JSON snapshots)
  --port <port>        HTTP listen port (default 8080)
  --help               print this help and exit
`
}
