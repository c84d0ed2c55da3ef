package inbox

import (
	"net/mail"
	"strings"
	"time"
)

// Encoding identifies how a leaf part's data is transport encoded
type Encoding int

const (
	EncodingIdentity  Encoding = iota // Data is already decoded
	EncodingBase64URL                 // URL-safe base64, padded or unpadded
)

// HeaderField is a single name/value header pair
type HeaderField struct {
	Name  string
	Value string
}

// Part is a node of a message's MIME tree. A part with children is a
// container; otherwise it is a leaf carrying encoded content.
type Part struct {
	MIMEType string
	Children []Part
	Data     []byte
	Encoding Encoding
}

// IsContainer reports whether the part holds child parts
func (p Part) IsContainer() bool {
	return len(p.Children) > 0
}

// RawMessage is a message as delivered by a mail source
type RawMessage struct {
	ID      string
	Headers []HeaderField
	Root    Part
}

// Header returns the first value for name, compared case-insensitively
func (m RawMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Message is the normalized form of a RawMessage used by the filter,
// classifier and extractor.
type Message struct {
	ID        string
	Subject   string
	Sender    string    // Lowercased bare address (e.g. "jobs-noreply@linkedin.com")
	Timestamp time.Time // Converted to the tracker's zone; zero if HasTime is false
	HasTime   bool
	Body      string
}

// Normalize builds a Message from raw, converting the Date header into loc.
// A missing or unparseable Date leaves HasTime false.
func Normalize(raw RawMessage, loc *time.Location) Message {
	msg := Message{
		ID:      raw.ID,
		Subject: raw.Header("Subject"),
		Sender:  senderAddress(raw.Header("From")),
		Body:    NormalizeBody(raw.Root),
	}

	if ts, ok := parseDate(raw.Header("Date")); ok {
		if loc != nil {
			ts = ts.In(loc)
		}
		msg.Timestamp = ts
		msg.HasTime = true
	}
	return msg
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	ts, err := mail.ParseDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// senderAddress reduces a From header to its address. Headers that do not
// parse are kept whole so substring checks still see the address.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(from)
}

// DateApplied formats the message date as YYYY-MM-DD, or "" without a time
func (m Message) DateApplied() string {
	if !m.HasTime {
		return ""
	}
	return m.Timestamp.Format("2006-01-02")
}

// TimeReceived formats the message time as HH:MM, or "" without a time
func (m Message) TimeReceived() string {
	if !m.HasTime {
		return ""
	}
	return m.Timestamp.Format("15:04")
}

// FromSender reports whether the message was sent by addr
func (m Message) FromSender(addr string) bool {
	if m.Sender == addr {
		return true
	}
	// Unparsed From headers keep display names around the address
	return strings.ContainsAny(m.Sender, "<> ") && strings.Contains(m.Sender, addr)
}
