package jitterbuf

import (
	"errors"
	"fmt"
)

const (
	DefaultHistorySize     = 500
	DefaultDropPct         = 3
	MaxDropPct             = 4
	DefaultTargetExtra     = 40
	DefaultMaxJitterbuf    = 1000
	DefaultResyncThreshold = 1000
	DefaultMaxContigInterp = 10
	DefaultAdjustInterval  = 40
	DefaultShrinkInterval  = 500
	// DefaultLossThreshold is 5%, in thousandths of a percent.
	DefaultLossThreshold = 5000
)

var ErrInvalidConfig = errors.New("invalid jitterbuffer config")

// Config holds the adaptive engine parameters. All durations are in the
// stream's time unit (milliseconds).
type Config struct {
	// MaxJitterbuf caps both the target delay and the span of queued frames.
	// Zero disables the cap.
	MaxJitterbuf int64 `json:"max_jitterbuf" yaml:"max_jitterbuf"`
	// ResyncThreshold is added to twice the jitter to detect timestamp
	// discontinuities. Zero or negative disables resynchronisation.
	ResyncThreshold int64 `json:"resync_threshold" yaml:"resync_threshold"`
	// MaxContigInterp is the number of back to back interpolations after
	// which the stream is considered silent. Zero means unlimited.
	MaxContigInterp int64 `json:"max_contig_interp" yaml:"max_contig_interp"`
	// TargetExtra is the safety margin added on top of the measured jitter.
	// Negative selects the default.
	TargetExtra    int64 `json:"target_extra" yaml:"target_extra"`
	HistorySize    int   `json:"history_size" yaml:"history_size"`
	DropPct        int   `json:"drop_pct" yaml:"drop_pct"`
	AdjustInterval int64 `json:"adjust_interval" yaml:"adjust_interval"`
	ShrinkInterval int64 `json:"shrink_interval" yaml:"shrink_interval"`
	LossThreshold  int64 `json:"loss_threshold" yaml:"loss_threshold"`
}

func DefaultConfig() Config {
	return Config{
		MaxJitterbuf:    DefaultMaxJitterbuf,
		ResyncThreshold: DefaultResyncThreshold,
		MaxContigInterp: DefaultMaxContigInterp,
		TargetExtra:     DefaultTargetExtra,
		HistorySize:     DefaultHistorySize,
		DropPct:         DefaultDropPct,
		AdjustInterval:  DefaultAdjustInterval,
		ShrinkInterval:  DefaultShrinkInterval,
		LossThreshold:   DefaultLossThreshold,
	}
}

// normalize validates c and replaces unset fields with defaults.
func (c *Config) normalize() error {
	if c.MaxJitterbuf < 0 {
		return fmt.Errorf("%w: max_jitterbuf %d", ErrInvalidConfig, c.MaxJitterbuf)
	}
	if c.MaxContigInterp < 0 {
		return fmt.Errorf("%w: max_contig_interp %d", ErrInvalidConfig, c.MaxContigInterp)
	}
	if c.TargetExtra < 0 {
		c.TargetExtra = DefaultTargetExtra
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.DropPct < 0 {
		c.DropPct = DefaultDropPct
	}
	if c.DropPct > MaxDropPct {
		c.DropPct = MaxDropPct
	}
	if c.AdjustInterval <= 0 {
		c.AdjustInterval = DefaultAdjustInterval
	}
	if c.ShrinkInterval <= 0 {
		c.ShrinkInterval = DefaultShrinkInterval
	}
	if c.LossThreshold <= 0 {
		c.LossThreshold = DefaultLossThreshold
	}
	return nil
}
