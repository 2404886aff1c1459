package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// FlexID is a participant or message identifier normalized to a single
// string form. Backends are inconsistent about whether ids travel as JSON
// strings or numbers; every comparison in the core happens on this type.
type FlexID string

func (f FlexID) String() string { return string(f) }

func (f FlexID) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(string(f))
}

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := jsoniter.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := jsoniter.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier is neither string nor number: %v", err)
	}
	*f = FlexID(n.String())
	return nil
}

// FlexTime accepts the timestamp shapes seen on the wire: RFC 3339 strings
// from history rows and epoch milliseconds from optimistic senders.
type FlexTime time.Time

func (t FlexTime) Time() time.Time { return time.Time(t) }

func (t FlexTime) IsZero() bool { return time.Time(t).IsZero() }

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return jsoniter.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = FlexTime(time.Time{})
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := jsoniter.Unmarshal(data, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				*t = FlexTime(parsed)
				return nil
			}
		}
		return fmt.Errorf("unrecognized timestamp format: %q", s)
	}
	raw, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp is neither string nor number: %v", err)
	}
	// Heuristic: values past the year 33658 in seconds are epoch millis.
	if raw > 1e12 {
		*t = FlexTime(time.UnixMilli(int64(raw)))
	} else {
		*t = FlexTime(time.Unix(int64(raw), 0))
	}
	return nil
}
