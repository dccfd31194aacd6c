package tcp

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/raiich/roomstream/lib/errors"
)

// Field numbers of the top-level stream.
const (
	fieldFormatVersion   protowire.Number = 1
	fieldHandshake       protowire.Number = 2
	fieldPacket          protowire.Number = 3
	fieldConnectionClose protowire.Number = 4
)

const protocolVersion = 1

type HandshakeStatus int32

const (
	HandshakeStatusOK HandshakeStatus = iota
	HandshakeStatusRetryLater
	HandshakeStatusUnaccepted
)

func (s HandshakeStatus) String() string {
	switch s {
	case HandshakeStatusOK:
		return "OK"
	case HandshakeStatusRetryLater:
		return "RETRY_LATER"
	case HandshakeStatusUnaccepted:
		return "UNACCEPTED"
	default:
		return "UNKNOWN"
	}
}

type CloseReason int32

const (
	CloseReasonNoError CloseReason = iota
	CloseReasonInternalError
	CloseReasonGoingAway
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonNoError:
		return "NO_ERROR"
	case CloseReasonInternalError:
		return "INTERNAL_ERROR"
	case CloseReasonGoingAway:
		return "GOING_AWAY"
	default:
		return "UNKNOWN"
	}
}

// ClientHandshake is sent once by the client after the format version.
type ClientHandshake struct {
	ProtocolVersion uint64
	ExtraParams     map[string][]byte
}

func (m *ClientHandshake) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.ProtocolVersion)
	return appendParams(b, 2, m.ExtraParams)
}

func (m *ClientHandshake) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ProtocolVersion = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			if m.ExtraParams == nil {
				m.ExtraParams = map[string][]byte{}
			}
			return consumeParam(b, m.ExtraParams)
		}
		return unknownField, nil
	})
}

// ServerHandshake answers ClientHandshake.
type ServerHandshake struct {
	Status      HandshakeStatus
	ExtraParams map[string][]byte
}

func (m *ServerHandshake) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Status))
	return appendParams(b, 2, m.ExtraParams)
}

func (m *ServerHandshake) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Status = HandshakeStatus(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			if m.ExtraParams == nil {
				m.ExtraParams = map[string][]byte{}
			}
			return consumeParam(b, m.ExtraParams)
		}
		return unknownField, nil
	})
}

// Packet carries frames; each payload is one frame.
type Packet struct {
	Payload [][]byte
}

func (m *Packet) marshal() []byte {
	var b []byte
	for _, p := range m.Payload {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, p)
	}
	return b
}

func (m *Packet) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				m.Payload = append(m.Payload, append([]byte(nil), v...))
			}
			return n, nil
		}
		return unknownField, nil
	})
}

type ConnectionClose struct {
	Reason CloseReason
}

func (m *ConnectionClose) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.Reason))
}

func (m *ConnectionClose) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Reason = CloseReason(v)
			return n, nil
		}
		return unknownField, nil
	})
}

// unknownField is returned by a field callback to have the field skipped.
const unknownField = math.MinInt32

// consumeFields walks the fields of a message. field returns the number of bytes it
// consumed (negative protowire error codes included) or unknownField.
func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "failed to read tag")
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n == unknownField {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "failed to read field %v", num)
		}
		b = b[n:]
	}
	return nil
}

func appendParams(b []byte, num protowire.Number, params map[string][]byte) []byte {
	for k, v := range params {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, v)
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func consumeParam(b []byte, params map[string][]byte) (int, error) {
	entry, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	var key string
	var value []byte
	err := consumeFields(entry, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			key = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			value = append([]byte(nil), v...)
			return n, nil
		}
		return unknownField, nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read param entry")
	}
	params[key] = value
	return n, nil
}
