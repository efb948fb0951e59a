package protocol

import (
	"encoding/binary"
	"fmt"
)

// ByteStream is a sequential big-endian reader/writer over a byte buffer.
type ByteStream struct {
	data   []byte
	offset int
}

func NewByteStream(data []byte) *ByteStream {
	return &ByteStream{
		data:   data,
		offset: 0,
	}
}

func NewEmptyByteStream() *ByteStream {
	return &ByteStream{
		data:   make([]byte, 0),
		offset: 0,
	}
}

func (bs *ByteStream) ReadByte() (byte, error) {
	if bs.offset >= len(bs.data) {
		return 0, fmt.Errorf("buffer overflow")
	}
	b := bs.data[bs.offset]
	bs.offset++
	return b, nil
}

func (bs *ByteStream) ReadBytes(n int) ([]byte, error) {
	if bs.offset+n > len(bs.data) {
		return nil, fmt.Errorf("buffer overflow")
	}
	result := bs.data[bs.offset : bs.offset+n]
	bs.offset += n
	return result, nil
}

func (bs *ByteStream) ReadUint16() (uint16, error) {
	data, err := bs.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

func (bs *ByteStream) ReadUint32() (uint32, error) {
	data, err := bs.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

func (bs *ByteStream) WriteByte(b byte) {
	bs.data = append(bs.data, b)
}

func (bs *ByteStream) WriteBytes(data []byte) {
	bs.data = append(bs.data, data...)
}

func (bs *ByteStream) WriteUint16(v uint16) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	bs.data = append(bs.data, buf...)
}

func (bs *ByteStream) WriteUint32(v uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	bs.data = append(bs.data, buf...)
}

func (bs *ByteStream) GetData() []byte {
	return bs.data
}

func (bs *ByteStream) Reset() {
	bs.data = make([]byte, 0)
	bs.offset = 0
}

func (bs *ByteStream) Remaining() int {
	return len(bs.data) - bs.offset
}
