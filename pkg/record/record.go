// Package record defines the newline-delimited JSON records written to
// session and staging files, and the one encoder they all go through.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Data type tags carried in the "dt" field.
const (
	TypeHeader     = "h"
	TypeAttributes = "a"
	TypeOpen       = "s"
	TypeEvent      = "e"
	TypeClose      = "c"
)

// Open starts a session.
type Open struct {
	DataType   string `json:"dt"`
	ClientTime int64  `json:"ct"`
	ID         string `json:"u"`
}

// NewOpen returns an open record for the session id started at ct.
func NewOpen(sessionID string, ct int64) Open {
	return Open{DataType: TypeOpen, ClientTime: ct, ID: sessionID}
}

// Event is one tagged application event.
type Event struct {
	DataType   string            `json:"dt"`
	ClientTime int64             `json:"ct"`
	ID         string            `json:"u"`
	SessionID  string            `json:"su"`
	Name       string            `json:"n"`
	Attributes map[string]string `json:"attrs,omitempty"`
}

// NewEvent returns an event record. A nil attrs map omits "attrs"; a
// non-nil empty map is written as {}.
func NewEvent(id, sessionID, name string, attrs map[string]string, ct int64) Event {
	return Event{
		DataType:   TypeEvent,
		ClientTime: ct,
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Attributes: attrs,
	}
}

// MarshalJSON keeps an empty non-nil attribute map, which omitempty would drop.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Attributes == nil || len(e.Attributes) > 0 {
		return marshal(plain(e))
	}
	return marshal(struct {
		plain
		Attributes map[string]string `json:"attrs"`
	}{plain: plain(e), Attributes: e.Attributes})
}

// Close ends a session.
type Close struct {
	DataType   string `json:"dt"`
	ID         string `json:"u"`
	StartTime  int64  `json:"ss"`
	SessionID  string `json:"su"`
	ClientTime int64  `json:"ct"`
}

// NewClose returns a close record for a session started at startTime.
func NewClose(id, sessionID string, startTime, ct int64) Close {
	return Close{
		DataType:   TypeClose,
		ID:         id,
		StartTime:  startTime,
		SessionID:  sessionID,
		ClientTime: ct,
	}
}

// Header is the first line of every staging file.
type Header struct {
	DataType    string      `json:"dt"`
	PersistedAt int64       `json:"pa"`
	Sequence    int64       `json:"seq"`
	ID          string      `json:"u"`
	Attributes  HeaderAttrs `json:"attrs"`
}

// HeaderAttrs describes the install, device and application a blob comes from.
type HeaderAttrs struct {
	DataType       string `json:"dt"`
	AppKey         string `json:"au"`
	DeviceID       string `json:"du"`
	LibraryVersion string `json:"lv"`
	AppVersion     string `json:"av"`
	Platform       string `json:"dp"`
	Language       string `json:"dll"`
	DeviceModel    string `json:"dmo"`
	OSVersion      string `json:"dov"`
	InstallID      string `json:"iu"`
}

// Encode renders v as one JSON line terminated by '\n'. HTML characters are
// left as is; quotes, backslashes and control characters are escaped.
func Encode(v any) (string, error) {
	data, err := marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data) + "\n", nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
