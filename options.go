package memkv

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oshokin/memkv/store"
)

// Supported serialization formats.
const (
	// SerializationJSON encodes values with encoding/json and accepts any
	// JSON-marshalable value. Numbers come back as float64 and composite
	// values as map[string]any or []any, per encoding/json rules.
	SerializationJSON = "json"

	// SerializationString passes strings and byte slices through as raw
	// bytes and rejects every other type. Values always come back as string.
	SerializationString = "string"

	// DefaultSerialization is applied when Options.Serialization is empty.
	DefaultSerialization = SerializationJSON
)

// Options configures a store handle created by New or opened by Open.
// The zero value is ready to use: JSON serialization, one shard per CPU,
// no expiry, and no size caps.
type Options struct {
	// Serialization selects how values are converted to bytes:
	// SerializationJSON (the default) or SerializationString.
	// Matching is case-insensitive.
	Serialization string

	// ShardCount sets the number of shards for the underlying store.
	// If <= 0, defaults to runtime.NumCPU().
	// If > store.MaxShardCount, capped at store.MaxShardCount.
	ShardCount int

	// TTL is the default time-to-live applied to every write.
	// Accepts a time.Duration, a number of milliseconds, or a string
	// understood by time.ParseDuration ("30s", "1h").
	// nil or 0 disables expiry.
	TTL any

	// SweepInterval enables a background sweeper that removes expired
	// entries without waiting for them to be read. Accepts the same forms
	// as TTL and requires a non-zero TTL. nil or 0 keeps expiry lazy.
	SweepInterval any

	// MaxKeySize caps key length in bytes.
	// Accepts a number of bytes or a string understood by
	// humanize.ParseBytes ("1kb", "64 MiB"). nil or 0 means unlimited.
	MaxKeySize any

	// MaxValueSize caps serialized value length in bytes.
	// Accepts the same forms as MaxKeySize. nil or 0 means unlimited.
	MaxValueSize any

	// Logger receives debug-level lifecycle and sweep events.
	// If nil, logging is discarded.
	Logger *slog.Logger
}

// resolvedOptions is the fully parsed form of Options, with every loosely
// typed knob converted to its concrete value and defaults applied.
type resolvedOptions struct {
	serialization string
	memory        *store.MemoryConfig
	ttl           time.Duration
	sweepInterval time.Duration
	maxKeySize    uint64
	maxValueSize  uint64
	logger        *slog.Logger
}

// Validate checks that every knob parses and that the combination is
// coherent. New and Open call it implicitly.
func (o *Options) Validate() error {
	_, err := o.resolve()

	return err
}

// Equal reports whether two option sets configure identical stores.
// Loosely typed knobs compare by parsed value, so a TTL of "1s" equals a
// TTL of 1000, and a nil *Options equals the zero value. Logger is
// ignored: it does not affect store behavior.
func (o *Options) Equal(other *Options) bool {
	if o == nil {
		o = &Options{}
	}

	if other == nil {
		other = &Options{}
	}

	return normalizeSerialization(o.Serialization) == normalizeSerialization(other.Serialization) &&
		o.getShardCount() == other.getShardCount() &&
		durationValuesEqual(o.TTL, other.TTL) &&
		durationValuesEqual(o.SweepInterval, other.SweepInterval) &&
		sizeValuesEqual(o.MaxKeySize, other.MaxKeySize) &&
		sizeValuesEqual(o.MaxValueSize, other.MaxValueSize)
}

// resolve parses the loosely typed knobs into their concrete values.
// It returns an InvalidOptionsError describing the first malformed knob.
// A nil receiver resolves to the defaults.
func (o *Options) resolve() (*resolvedOptions, error) {
	if o == nil {
		o = &Options{}
	}

	serialization := normalizeSerialization(o.Serialization)
	if serialization != SerializationJSON && serialization != SerializationString {
		return nil, NewError(InvalidOptionsError,
			fmt.Sprintf("unsupported serialization format: %q", o.Serialization))
	}

	ttl, err := parseDurationValue(o.TTL)
	if err != nil {
		return nil, NewError(InvalidOptionsError, fmt.Sprintf("invalid TTL: %v", err))
	}

	sweepInterval, err := parseDurationValue(o.SweepInterval)
	if err != nil {
		return nil, NewError(InvalidOptionsError, fmt.Sprintf("invalid sweep interval: %v", err))
	}

	if sweepInterval > 0 && ttl == 0 {
		return nil, NewError(InvalidOptionsError, "sweep interval requires a TTL")
	}

	maxKeySize, err := parseSizeValue(o.MaxKeySize)
	if err != nil {
		return nil, NewError(InvalidOptionsError, fmt.Sprintf("invalid max key size: %v", err))
	}

	maxValueSize, err := parseSizeValue(o.MaxValueSize)
	if err != nil {
		return nil, NewError(InvalidOptionsError, fmt.Sprintf("invalid max value size: %v", err))
	}

	return &resolvedOptions{
		serialization: serialization,
		memory:        &store.MemoryConfig{ShardCount: o.getShardCount()},
		ttl:           ttl,
		sweepInterval: sweepInterval,
		maxKeySize:    maxKeySize,
		maxValueSize:  maxValueSize,
		logger:        loggerOrDiscard(o.Logger),
	}, nil
}

// getShardCount normalizes ShardCount for comparison: every "use the
// default" value collapses to 0 and anything above the store cap collapses
// to the cap, so Equal treats them as the same configuration.
func (o *Options) getShardCount() int {
	if o == nil || o.ShardCount <= 0 {
		return 0
	}

	return min(o.ShardCount, store.MaxShardCount)
}

// normalizeSerialization lowercases the format name and applies the
// default for an empty one.
func normalizeSerialization(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return DefaultSerialization
	}

	return format
}

// loggerOrDiscard returns the logger, or a discarding one when nil.
func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return logger
}
