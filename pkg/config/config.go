package config

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/sledge/pkg/logging"
	"github.com/replicate/sledge/pkg/optname"
)

const (
	// AuthTokenHeader carries --token on every request.
	AuthTokenHeader = "X-Auth-Token"

	DefaultConcurrency = 4
)

// HostToIPResolutionMap is a map of host:port to ip:port, populated from --resolve
var HostToIPResolutionMap = make(map[string]string)

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().IntP(optname.Concurrency, "c", DefaultConcurrency, "Number of byte ranges fetched concurrently for a single file")
	cmd.PersistentFlags().BoolP(optname.Serial, "s", false, "Download with a single GET instead of concurrent range requests")
	cmd.PersistentFlags().Duration(optname.ConnTimeout, 5*time.Second, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().BoolP(optname.Force, "f", false, "Force download, overwriting existing file")
	cmd.PersistentFlags().StringP(optname.Dir, "d", "", "Directory for files named by the server, defaults to the working directory")
	cmd.PersistentFlags().BoolP(optname.Extract, "x", false, "Extract the downloaded tar or zip archive")
	cmd.PersistentFlags().String(optname.ExtractDir, "", "Directory to extract into, defaults to the directory of the download")
	cmd.PersistentFlags().StringArrayP(optname.Header, "H", []string{}, "Extra request header in 'Key: Value' form, may be repeated")
	cmd.PersistentFlags().StringP(optname.Token, "t", "", fmt.Sprintf("Auth token, sent as the %s header", AuthTokenHeader))
	cmd.PersistentFlags().StringSlice(optname.Resolve, []string{}, "Resolve hostnames to specific IPs, format is <hostname>:<port>:<ip>")
	cmd.PersistentFlags().IntP(optname.Retries, "r", 0, "Number of retries when a request fails before any data is received")
	cmd.PersistentFlags().Bool(optname.NoProgress, false, "Do not render a progress bar")
	cmd.PersistentFlags().String(optname.PIDFile, "", "Lock file that serializes concurrent sledge runs, disabled when empty")
	cmd.PersistentFlags().BoolP(optname.Verbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().String(optname.LoggingLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool(optname.ForceHTTP2, false, "Force HTTP/2")

	viper.SetEnvPrefix("SLEDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}

	// Hidden, intended for testing/benchmarking only
	if err := cmd.PersistentFlags().MarkHidden(optname.ForceHTTP2); err != nil {
		return fmt.Errorf("failed to hide flag %s: %w", optname.ForceHTTP2, err)
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if viper.GetBool(optname.Verbose) {
		viper.Set(optname.LoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(optname.LoggingLevel))

	resolveOverrides, err := ResolveOverridesToMap(viper.GetStringSlice(optname.Resolve))
	if err != nil {
		return err
	}
	for k, v := range resolveOverrides {
		HostToIPResolutionMap[k] = v
	}
	return nil
}

func setLogLevel(logLevel string) {
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ResolveOverridesToMap converts <hostname>:<port>:<ip> entries into a map of
// host:port to ip:port.
func ResolveOverridesToMap(resolveOverrides []string) (map[string]string, error) {
	logger := logging.GetLogger()
	var resolveOverridesMap map[string]string

	for _, resolveHost := range resolveOverrides {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		if resolveOverridesMap == nil {
			resolveOverridesMap = make(map[string]string)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverridesMap[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified with different targets: %s", hostPort)
		}
		resolveOverridesMap[hostPort] = target
	}
	if logger.GetLevel() == zerolog.DebugLevel {
		for key, elem := range resolveOverridesMap {
			logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
		}
	}
	return resolveOverridesMap, nil
}

// Headers builds the request header set from --header and --token.
func Headers() (http.Header, error) {
	return ParseHeaders(viper.GetStringSlice(optname.Header), viper.GetString(optname.Token))
}

// ParseHeaders converts 'Key: Value' entries into an http.Header. A non-empty token is
// added as the auth token header.
func ParseHeaders(entries []string, token string) (http.Header, error) {
	header := make(http.Header)
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header format, expected 'Key: Value', got: %s", entry)
		}
		header.Add(key, strings.TrimSpace(value))
	}
	if token != "" {
		header.Set(AuthTokenHeader, token)
	}
	return header, nil
}
