// Package wire implements the JSON-RPC wire codecs and framing primitives
// shared by every transport: message identity, content encoding, and the
// streaming line decoder used by newline-delimited transports.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageIDKind discriminates the concrete representation held by a
// MessageID.
type MessageIDKind int

const (
	// MessageIDNone represents a JSON-RPC notification: no id at all.
	MessageIDNone MessageIDKind = iota
	// MessageIDString is a string-valued id.
	MessageIDString
	// MessageIDNumber is a numeric id.
	MessageIDNumber
	// MessageIDUUID is a UUID id, encoded on the wire as a string.
	MessageIDUUID
)

// MessageID is a JSON-RPC request/response identifier. It preserves its
// original representation across decode/encode so that string ids stay
// strings and numeric ids stay numbers.
type MessageID struct {
	Kind MessageIDKind
	Str  string
	Num  int64
	UUID uuid.UUID
}

// NewStringMessageID builds a string-valued MessageID.
func NewStringMessageID(s string) MessageID {
	return MessageID{Kind: MessageIDString, Str: s}
}

// NewNumberMessageID builds a numeric MessageID.
func NewNumberMessageID(n int64) MessageID {
	return MessageID{Kind: MessageIDNumber, Num: n}
}

// NewUUIDMessageID builds a UUID-valued MessageID, generating a fresh
// random (v4) UUID.
func NewUUIDMessageID() MessageID {
	return MessageID{Kind: MessageIDUUID, UUID: uuid.New()}
}

// IsNotification reports whether this id represents the absence of an id,
// i.e. a JSON-RPC notification.
func (m MessageID) IsNotification() bool {
	return m.Kind == MessageIDNone
}

// String renders the id for logging/debugging purposes.
func (m MessageID) String() string {
	switch m.Kind {
	case MessageIDString:
		return m.Str
	case MessageIDNumber:
		return fmt.Sprintf("%d", m.Num)
	case MessageIDUUID:
		return m.UUID.String()
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the id using its original representation: a JSON
// string for Str/UUID kinds, a JSON number for Num, and `null` for the
// notification (none) kind.
func (m MessageID) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case MessageIDString:
		return json.Marshal(m.Str)
	case MessageIDNumber:
		return json.Marshal(m.Num)
	case MessageIDUUID:
		return json.Marshal(m.UUID.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON-RPC id, preferring a UUID interpretation
// for string values that parse as one, otherwise keeping the string as-is.
// Numeric values decode as MessageIDNumber. `null` or an absent value
// decodes as the notification id.
func (m *MessageID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode message id: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		*m = MessageID{Kind: MessageIDNone}
	case string:
		if id, err := uuid.Parse(v); err == nil {
			*m = MessageID{Kind: MessageIDUUID, UUID: id}
			return nil
		}
		*m = MessageID{Kind: MessageIDString, Str: v}
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return fmt.Errorf("decode message id: %w", ferr)
			}
			n = int64(f)
		}
		*m = MessageID{Kind: MessageIDNumber, Num: n}
	default:
		return fmt.Errorf("decode message id: unsupported type %T", raw)
	}
	return nil
}
