// Package timestamp turns the several timestamp encodings found in reading
// documents into a single UTC instant.
package timestamp

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Encoding tags the physical representation of a raw timestamp.
type Encoding int

const (
	Unrecognized Encoding = iota
	ISOString
	EpochMillisFloat
	EpochMillisInt64
	EpochInt32
	Native
)

func (e Encoding) String() string {
	switch e {
	case ISOString:
		return "iso_string"
	case EpochMillisFloat:
		return "epoch_millis_float"
	case EpochMillisInt64:
		return "epoch_millis_int64"
	case EpochInt32:
		return "epoch_int32"
	case Native:
		return "native"
	default:
		return "unrecognized"
	}
}

// Fallback reasons reported to the fallback hook.
const (
	ReasonUnrecognized = "unrecognized_encoding"
	ReasonUnparseable  = "unparseable_string"
	ReasonNonFinite    = "non_finite_number"
	ReasonOutOfRange   = "out_of_range_number"
)

// maxFloatMillis bounds float epoch milliseconds that fit in int64 nanoseconds.
const maxFloatMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// Raw is a timestamp exactly as it was read from the store.
type Raw struct {
	Encoding Encoding

	str     string
	float   float64
	integer int64
	native  time.Time
	// source type name, kept for unrecognized values
	source string
}

func FromString(s string) Raw     { return Raw{Encoding: ISOString, str: s} }
func FromFloat(f float64) Raw     { return Raw{Encoding: EpochMillisFloat, float: f} }
func FromInt64(i int64) Raw       { return Raw{Encoding: EpochMillisInt64, integer: i} }
func FromInt32(i int32) Raw       { return Raw{Encoding: EpochInt32, integer: int64(i)} }
func FromTime(t time.Time) Raw    { return Raw{Encoding: Native, native: t} }
func Unknown(typeName string) Raw { return Raw{Encoding: Unrecognized, source: typeName} }

// FromValue tags a decoded Go value. Used for documents that did not come
// straight off the wire (fixtures, JSON).
func FromValue(v interface{}) Raw {
	switch val := v.(type) {
	case nil:
		return Unknown("null")
	case string:
		return FromString(val)
	case float64:
		return FromFloat(val)
	case float32:
		return FromFloat(float64(val))
	case int64:
		return FromInt64(val)
	case int:
		return FromInt64(int64(val))
	case int32:
		return FromInt32(val)
	case time.Time:
		return FromTime(val)
	case *time.Time:
		if val == nil {
			return Unknown("null")
		}
		return FromTime(*val)
	default:
		return Unknown(fmt.Sprintf("%T", v))
	}
}

// Value returns the raw value in its native Go form, for echoing back in
// raw retrieval responses.
func (r Raw) Value() interface{} {
	switch r.Encoding {
	case ISOString:
		return r.str
	case EpochMillisFloat:
		return r.float
	case EpochMillisInt64, EpochInt32:
		return r.integer
	case Native:
		return r.native.UTC()
	default:
		return nil
	}
}

func (r Raw) String() string {
	if r.Encoding == Unrecognized {
		return fmt.Sprintf("%s(%s)", r.Encoding, r.source)
	}
	return fmt.Sprintf("%s(%v)", r.Encoding, r.Value())
}

// FallbackFunc observes a timestamp that was replaced by the current time.
type FallbackFunc func(raw Raw, reason string)

// Normalizer converts raw timestamps to UTC instants.
type Normalizer struct {
	now        func() time.Time
	onFallback FallbackFunc
}

// NewNormalizer returns a normalizer that logs every fallback and then calls
// onFallback, if set.
func NewNormalizer(onFallback FallbackFunc) *Normalizer {
	return &Normalizer{
		now:        func() time.Time { return time.Now().UTC() },
		onFallback: onFallback,
	}
}

// WithClock replaces the wall clock used for the fallback branch.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	cp := *n
	cp.now = now
	return &cp
}

// Normalize returns the instant encoded by raw. When raw cannot be
// interpreted the current time is returned with ok=false.
func (n *Normalizer) Normalize(raw Raw) (t time.Time, ok bool) {
	switch raw.Encoding {
	case ISOString:
		parsed, err := ParseISO(raw.str)
		if err != nil {
			return n.fallback(raw, ReasonUnparseable), false
		}
		return parsed, true
	case EpochMillisFloat:
		if math.IsNaN(raw.float) || math.IsInf(raw.float, 0) {
			return n.fallback(raw, ReasonNonFinite), false
		}
		if math.Abs(raw.float) > maxFloatMillis {
			return n.fallback(raw, ReasonOutOfRange), false
		}
		return time.Unix(0, int64(raw.float*float64(time.Millisecond))).UTC(), true
	case EpochMillisInt64, EpochInt32:
		return time.UnixMilli(raw.integer).UTC(), true
	case Native:
		return raw.native.UTC(), true
	default:
		return n.fallback(raw, ReasonUnrecognized), false
	}
}

func (n *Normalizer) fallback(raw Raw, reason string) time.Time {
	now := n.now()
	slog.Warn("[Timestamp] Falling back to current time",
		"raw", raw.String(),
		"reason", reason,
		"substituted", now)
	if n.onFallback != nil {
		n.onFallback(raw, reason)
	}
	return now
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISO parses the ISO-8601 shapes found in reading documents and request
// parameters. Values without a zone are UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
