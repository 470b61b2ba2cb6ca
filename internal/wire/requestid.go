package wire

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RequestID uniquely identifies one logical request/response exchange
// within a transmitter's lifetime (spec.md §3, "RequestID").
type RequestID [16]byte

// NewRequestID generates a fresh, client-side-unique RequestID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// String renders the RequestID in canonical UUID form.
func (r RequestID) String() string {
	return uuid.UUID(r).String()
}

// Bytes returns the raw 16-byte identifier, the form carried on the
// wire.
func (r RequestID) Bytes() []byte {
	return r[:]
}

// RequestIDFromBytes parses a 16-byte wire identifier.
func RequestIDFromBytes(b []byte) RequestID {
	var r RequestID
	copy(r[:], b)
	return r
}

// MarshalJSON renders the RequestID as a canonical UUID string so the
// JSON wire stand-in stays human-readable.
func (r RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses a canonical UUID string back into a RequestID.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*r = RequestID(parsed)
	return nil
}
