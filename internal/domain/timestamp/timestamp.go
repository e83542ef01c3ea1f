// Package timestamp defines the comparable point in time used for every edge
// validity interval.
//
// The canonical string form is fixed width, so lexical order of two canonical
// strings is the same as their chronological order. Graph stores persist and
// compare this string form directly.
package timestamp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical representation persisted on edges.
const Layout = "2006-01-02T15:04:05.000000Z"

// Precision is the resolution every Timestamp is truncated to.
const Precision = time.Microsecond

// Timestamp wraps an instant in UTC. The zero value is the zero instant.
type Timestamp struct {
	t time.Time
}

// Now returns the current instant truncated to Precision.
func Now() Timestamp {
	return From(time.Now())
}

// From converts a time.Time to a Timestamp.
func From(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(Precision)}
}

// Parse accepts the canonical layout and any RFC 3339 value.
func Parse(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, fmt.Errorf("timestamp: empty value")
	}
	if t, err := time.Parse(Layout, raw); err == nil {
		return From(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp: parse %q: %w", raw, err)
	}
	return From(t), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(raw string) Timestamp {
	ts, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return ts
}

// OrNow parses raw, or returns Now when raw is empty.
func OrNow(raw string) (Timestamp, error) {
	if strings.TrimSpace(raw) == "" {
		return Now(), nil
	}
	return Parse(raw)
}

func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// String returns the canonical form.
func (ts Timestamp) String() string {
	return ts.t.UTC().Format(Layout)
}

// Compare returns -1, 0 or +1.
func (ts Timestamp) Compare(other Timestamp) int {
	return ts.t.Compare(other.t)
}

func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

func (ts Timestamp) After(other Timestamp) bool { return ts.t.After(other.t) }

func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

func (ts Timestamp) Add(d time.Duration) Timestamp { return From(ts.t.Add(d)) }

// Max returns the later of a and b.
func Max(a, b Timestamp) Timestamp {
	if a.After(b) {
		return a
	}
	return b
}

// Min returns the earlier of a and b.
func Min(a, b Timestamp) Timestamp {
	if a.Before(b) {
		return a
	}
	return b
}

func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

func (ts *Timestamp) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	return ts.UnmarshalText([]byte(raw))
}
