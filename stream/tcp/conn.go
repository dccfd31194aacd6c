package tcp

import (
	"bytes"
	"encoding/binary"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/raiich/roomstream/lib/errors"
)

var (
	formatVersionTag = protowire.AppendTag(nil, fieldFormatVersion, protowire.VarintType)
	formatVersion1   = protowire.AppendVarint(formatVersionTag, 1)
)

// maxMessageSize bounds a single length-delimited message.
const maxMessageSize = 16 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported format version")
	ErrUnexpectedField   = errors.New("unexpected field")
)

type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

type connReader interface {
	io.Reader
	io.ByteReader
}

func readFormatVersion(r io.Reader) error {
	actual := make([]byte, len(formatVersion1))
	if _, err := io.ReadFull(r, actual); err != nil {
		return errors.Wrapf(err, "failed to read format version")
	}
	if !bytes.Equal(actual, formatVersion1) {
		return errors.Wrapf(ErrUnsupportedFormat, "%v", actual)
	}
	return nil
}

// readField reads the next top-level field and returns its number and message bytes.
func readField(r connReader) (protowire.Number, []byte, error) {
	tag, err := binary.ReadUvarint(r)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return 0, nil, errors.Wrapf(err, "failed to read tag")
		}
		return 0, nil, err
	}
	num, typ := protowire.DecodeTag(tag)
	if typ != protowire.BytesType {
		return 0, nil, errors.Wrapf(ErrUnexpectedField, "field %v has wire type %v", num, typ)
	}
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "failed to read length")
	}
	if l > maxMessageSize {
		return 0, nil, errors.Newf("message too large: %d bytes", l)
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, errors.Wrapf(err, "failed to read bytes from stream")
	}
	return num, buf, nil
}

func readMessage(r connReader, want protowire.Number, m message) error {
	num, b, err := readField(r)
	if err != nil {
		return err
	}
	if num != want {
		return errors.Wrapf(ErrUnexpectedField, "got %v, want %v", num, want)
	}
	if err := m.unmarshal(b); err != nil {
		return errors.Wrapf(err, "failed to unmarshal message: %T", m)
	}
	return nil
}

func writeFormatVersion(w io.Writer) error {
	if _, err := w.Write(formatVersion1); err != nil {
		return errors.Wrapf(err, "failed to write format version: %v", formatVersion1)
	}
	return nil
}

func writeMessage(w io.Writer, n protowire.Number, m message) error {
	b := protowire.AppendTag(nil, n, protowire.BytesType)
	b = protowire.AppendBytes(b, m.marshal())
	if _, err := w.Write(b); err != nil {
		return errors.Wrapf(err, "failed to write message: %T", m)
	}
	return nil
}
