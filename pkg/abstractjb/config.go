package abstractjb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/jitterbuf"
)

const (
	DefaultMaxSize         = 200
	DefaultResyncThreshold = 1000
	DefaultTargetExtra     = jitterbuf.DefaultTargetExtra

	confPrefix = "jb"
)

var (
	ErrNoMatch      = errors.New("no such jitterbuffer option")
	ErrInvalidValue = errors.New("invalid jitterbuffer option value")
)

// Config is the per-leg jitterbuffer configuration.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Forced uses a jitterbuffer even when the leg can absorb jitter itself.
	Forced          bool   `json:"forced" yaml:"forced"`
	MaxSize         int64  `json:"max_size" yaml:"max_size"`
	ResyncThreshold int64  `json:"resync_threshold" yaml:"resync_threshold"`
	Impl            string `json:"impl" yaml:"impl"`
	TargetExtra     int64  `json:"target_extra" yaml:"target_extra"`
	// Log writes a per-call frame log into LogDir.
	Log    bool   `json:"log" yaml:"log"`
	LogDir string `json:"log_dir" yaml:"log_dir"`
}

func DefaultConfig() Config {
	return Config{
		MaxSize:         DefaultMaxSize,
		ResyncThreshold: DefaultResyncThreshold,
		TargetExtra:     DefaultTargetExtra,
	}
}

// ReadConf applies one "jb" prefixed key/value option to conf, e.g.
// jbenable=yes or jbmaxsize=300. Keys are case-insensitive. An unknown key
// returns ErrNoMatch and a malformed value ErrInvalidValue; conf is left
// untouched in both cases.
func ReadConf(conf *Config, name, value string) error {
	lower := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(lower, confPrefix) {
		return fmt.Errorf("%w: %s", ErrNoMatch, name)
	}
	value = strings.TrimSpace(value)

	switch strings.TrimPrefix(lower, confPrefix) {
	case "enable":
		return setBool(&conf.Enabled, name, value)
	case "force":
		return setBool(&conf.Forced, name, value)
	case "log":
		return setBool(&conf.Log, name, value)
	case "maxsize":
		return setPositive(&conf.MaxSize, name, value)
	case "resyncthreshold":
		return setPositive(&conf.ResyncThreshold, name, value)
	case "impl":
		if value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidValue, name)
		}
		conf.Impl = value
	case "targetextra":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
		}
		conf.TargetExtra = v
	case "logdir":
		conf.LogDir = value
	default:
		return fmt.Errorf("%w: %s", ErrNoMatch, name)
	}
	return nil
}

func setBool(dst *bool, name, value string) error {
	switch strings.ToLower(value) {
	case "yes", "true", "y", "t", "1", "on":
		*dst = true
	case "no", "false", "n", "f", "0", "off":
		*dst = false
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
	}
	return nil
}

func setPositive(dst *int64, name, value string) error {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
	}
	*dst = v
	return nil
}
