package marstek

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Device is one battery/inverter record from the device-list endpoint.
//
// A fresh set of records is produced every poll cycle; no identity is kept
// across cycles except by DevID lookup. Power values are watts, SOC is a
// percentage, Profit is in the account currency.
type Device struct {
	DevID   string     `json:"devid"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	SN      string     `json:"sn"`
	Version FlexString `json:"version"`

	SOC       float64 `json:"soc"`
	Charge    float64 `json:"charge"`
	Discharge float64 `json:"discharge"`
	Load      float64 `json:"load"`
	PV        float64 `json:"pv"`
	Grid      float64 `json:"grid"`
	Profit    float64 `json:"profit"`

	ReportTime Timestamp `json:"report_time"`

	// CapacityKWh is operator-supplied (override store or configured
	// default), never sent by the vendor. Zero means "not yet applied".
	CapacityKWh float64 `json:"capacity_kwh,omitempty"`
}

// FlexString decodes a JSON value that the vendor sends inconsistently as
// either a string or a number (firmware versions, tokens).
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// Numbers (and anything else scalar) keep their literal form.
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Timestamp decodes the vendor's report_time field, which arrives either as
// a Unix timestamp (number) or a formatted date string.
type Timestamp struct {
	time.Time
}

// reportTimeLayout is the non-ISO format the cloud uses for report_time.
const reportTimeLayout = "2006-01-02 15:04:05"

// UnmarshalJSON implements json.Unmarshaler.
// Unparseable values decode to the zero time rather than failing the whole
// device record; report_time is informational only.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		t.Time = time.Time{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339, reportTimeLayout} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		t.Time = time.Time{}
		return nil
	}

	var unix float64
	if err := json.Unmarshal(trimmed, &unix); err != nil {
		t.Time = time.Time{}
		return nil
	}
	sec, frac := int64(unix), unix-float64(int64(unix))
	t.Time = time.Unix(sec, int64(frac*float64(time.Second)))
	return nil
}

// MarshalJSON implements json.Marshaler. Zero times encode as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Code is a response code the vendor sends as either a number or a string.
// All comparisons happen in normalised string form.
type Code struct {
	raw string
	set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Code) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		c.raw = strings.TrimSpace(s)
		c.set = true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	// Normalise floats like 8.0 so "8" compares equal.
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		c.raw = strconv.FormatInt(int64(f), 10)
	} else {
		c.raw = n.String()
	}
	c.set = true
	return nil
}

// String returns the normalised code, or "" when the field was absent.
func (c Code) String() string {
	return c.raw
}

// IsSet reports whether the response carried a code field.
func (c Code) IsSet() bool {
	return c.set
}

// loginEnvelope is the login endpoint's response shape.
type loginEnvelope struct {
	Token   FlexString `json:"token"`
	Msg     string     `json:"msg"`
	Message string     `json:"message"`
}

func (e *loginEnvelope) errorMessage() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Message != "" {
		return e.Message
	}
	return "unknown error"
}

// deviceListEnvelope is the device-list endpoint's response shape.
// Data stays raw so the client can distinguish "field absent" from
// "present but not an array".
type deviceListEnvelope struct {
	Code    Code            `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *deviceListEnvelope) errorMessage() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Message != "" {
		return e.Message
	}
	return "unknown error"
}
