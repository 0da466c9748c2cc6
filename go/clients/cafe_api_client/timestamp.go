package cafe_api_client

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochSecondsCutoff separates epoch seconds from epoch milliseconds.
// 1e11 seconds is the year 5138, 1e11 milliseconds is March 1973.
const epochSecondsCutoff = 1e11

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes the backend's ISO-8601 strings and epoch numbers.
// Values that cannot be parsed decode to the zero time rather than failing the
// whole payload; the countdown engine treats a zero timestamp as expired.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			t.Time = time.Time{}
			return nil
		}
		t.Time = ParseTimestamp(s)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = FromEpoch(f)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses an ISO-8601 string or a numeric epoch string.
// Zone-less values are taken as UTC. Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpoch(f)
	}
	return time.Time{}
}

// FromEpoch converts an epoch number, seconds below 1e11 and milliseconds above
func FromEpoch(f float64) time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}
	}
	if f < epochSecondsCutoff {
		f *= 1000
	}
	return time.UnixMilli(int64(f)).UTC()
}
