package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WriteUint32 writes a little-endian uint32 to the buffer.
func WriteUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

// ReadUint32 reads a little-endian uint32 from the reader.
func ReadUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// WriteBytes writes a length-prefixed byte string to the buffer.
func WriteBytes(buf *bytes.Buffer, b []byte) error {
	if err := WriteUint32(buf, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

// ReadBytes reads a length-prefixed byte string from the reader. A length
// prefix exceeding the remaining input is rejected as truncation.
func ReadBytes(r *bytes.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteString writes a length-prefixed UTF-8 string to the buffer.
func WriteString(buf *bytes.Buffer, s string) error {
	return WriteBytes(buf, []byte(s))
}

// ReadString reads a length-prefixed UTF-8 string from the reader.
func ReadString(r *bytes.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeFloat64Slice encodes float64 values as a count followed by raw
// little-endian words.
func EncodeFloat64Slice(values []float64) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(values)))
	for _, v := range values {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// DecodeFloat64Slice decodes values produced by EncodeFloat64Slice.
func DecodeFloat64Slice(data []byte) ([]float64, error) {
	r := bytes.NewReader(data)
	count, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if int(count)*8 > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]float64, 0, count)
	for i := uint32(0); i < count; i++ {
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
