package types

import (
	"fmt"
	"regexp"
	"time"
)

// ownerPrefixPattern keeps a prefix usable as a single path element and
// as the head of a service name.
var ownerPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// LogFormat is forwarded verbatim to node processes.
type LogFormat string

const (
	LogFormatDefault LogFormat = "default"
	LogFormatJSON    LogFormat = "json"
)

// ParseLogFormat accepts "", "default" or "json".
func ParseLogFormat(s string) (LogFormat, error) {
	switch s {
	case "", string(LogFormatDefault):
		return LogFormatDefault, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q: only \"default\" or \"json\" are valid", s)
	}
}

// LocalNetworkOptions is the input to one orchestration call. It is not
// mutated while the call runs.
type LocalNetworkOptions struct {
	Count int
	Join  bool
	// Peers seeds every node when Join is set. Empty on a fresh network:
	// the first node bootstraps itself.
	Peers []string
	// Interval is the minimum delay between successive process starts.
	Interval time.Duration

	NodeBinPath   string
	NodeVersion   string
	FaucetBinPath string
	FaucetVersion string

	Owner       string
	OwnerPrefix string

	SkipValidation bool
	LogFormat      LogFormat
}

// Validate checks the options before any process is touched.
func (o *LocalNetworkOptions) Validate() error {
	if o.Count < 0 {
		return fmt.Errorf("invalid node count %d", o.Count)
	}
	if o.Count > 0 && o.NodeBinPath == "" {
		return fmt.Errorf("node binary path is required")
	}
	if o.Interval < 0 {
		return fmt.Errorf("invalid interval %s", o.Interval)
	}
	if o.OwnerPrefix != "" && !ownerPrefixPattern.MatchString(o.OwnerPrefix) {
		return fmt.Errorf("invalid owner prefix %q: letters, digits, '-' and '_' only", o.OwnerPrefix)
	}
	if _, err := ParseLogFormat(string(o.LogFormat)); err != nil {
		return err
	}
	return nil
}
