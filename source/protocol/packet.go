package protocol

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"
)

// Packet type flags
const (
	FLAG_DATA = 0x01
	FLAG_ACK  = 0x02
	FLAG_FIN  = 0x04
	FLAG_SYN  = 0x08
)

const (
	// HeaderSize is the fixed wire header length:
	// seq(4) + ack(4) + flags(1) + window(2) + length(2) + checksum(2)
	HeaderSize = 15

	DefaultWindowSize    = 5
	DefaultMaxPacketSize = 1024
)

// Packet is the unit of transmission. All header fields are big-endian
// on the wire. Checksum covers every other header field plus the payload.
type Packet struct {
	SeqNum     uint32
	AckNum     uint32
	Flags      byte
	WindowSize uint16
	DataLength uint16
	Checksum   uint16
	Data       []byte
}

func NewDataPacket(seqNum uint32, data []byte, windowSize uint16) *Packet {
	return &Packet{
		SeqNum:     seqNum,
		Flags:      FLAG_DATA,
		WindowSize: windowSize,
		DataLength: uint16(len(data)),
		Data:       data,
	}
}

func NewAckPacket(ackNum uint32, windowSize uint16) *Packet {
	return &Packet{
		AckNum:     ackNum,
		Flags:      FLAG_ACK,
		WindowSize: windowSize,
	}
}

// NewSynPacket builds a SYN packet. The flag is reserved; the engine
// never transmits one.
func NewSynPacket(seqNum uint32) *Packet {
	return &Packet{
		SeqNum: seqNum,
		Flags:  FLAG_SYN,
	}
}

// NewFinPacket builds a FIN packet. The flag is reserved; the engine
// never transmits one.
func NewFinPacket(seqNum uint32) *Packet {
	return &Packet{
		SeqNum: seqNum,
		Flags:  FLAG_FIN,
	}
}

func NewSynAckPacket(seqNum, ackNum uint32) *Packet {
	return &Packet{
		SeqNum: seqNum,
		AckNum: ackNum,
		Flags:  FLAG_SYN | FLAG_ACK,
	}
}

// CalculateChecksum computes the checksum over the header without the
// checksum field, followed by the payload: the first two bytes of the
// MD5 digest, big-endian. MD5 here is corruption detection only.
func (p *Packet) CalculateChecksum() uint16 {
	bs := NewEmptyByteStream()
	bs.WriteUint32(p.SeqNum)
	bs.WriteUint32(p.AckNum)
	bs.WriteByte(p.Flags)
	bs.WriteUint16(p.WindowSize)
	bs.WriteUint16(p.DataLength)

	h := md5.New()
	h.Write(bs.GetData())
	h.Write(p.Data)
	digest := h.Sum(nil)

	return binary.BigEndian.Uint16(digest[:2])
}

// Serialize fills the checksum field and emits the header followed by
// the payload. Deterministic for a given packet.
func (p *Packet) Serialize() []byte {
	p.DataLength = uint16(len(p.Data))
	p.Checksum = p.CalculateChecksum()

	bs := NewEmptyByteStream()
	bs.WriteUint32(p.SeqNum)
	bs.WriteUint32(p.AckNum)
	bs.WriteByte(p.Flags)
	bs.WriteUint16(p.WindowSize)
	bs.WriteUint16(p.DataLength)
	bs.WriteUint16(p.Checksum)
	bs.WriteBytes(p.Data)

	return bs.GetData()
}

// Deserialize parses raw bytes into a packet. Returns nil when the
// buffer is shorter than the header or than the declared payload length.
// The carried checksum is kept verbatim so corruption stays detectable
// through IsCorrupt rather than being conflated with bad framing.
func Deserialize(raw []byte) *Packet {
	if len(raw) < HeaderSize {
		return nil
	}

	bs := NewByteStream(raw)
	seqNum, _ := bs.ReadUint32()
	ackNum, _ := bs.ReadUint32()
	flags, _ := bs.ReadByte()
	windowSize, _ := bs.ReadUint16()
	dataLength, _ := bs.ReadUint16()
	checksum, _ := bs.ReadUint16()

	if len(raw) < HeaderSize+int(dataLength) {
		return nil
	}

	data := make([]byte, dataLength)
	copy(data, raw[HeaderSize:HeaderSize+int(dataLength)])

	return &Packet{
		SeqNum:     seqNum,
		AckNum:     ackNum,
		Flags:      flags,
		WindowSize: windowSize,
		DataLength: dataLength,
		Checksum:   checksum,
		Data:       data,
	}
}

// IsCorrupt recomputes the checksum and compares it with the carried one.
func (p *Packet) IsCorrupt() bool {
	return p.CalculateChecksum() != p.Checksum
}

func (p *Packet) IsData() bool {
	return p.Flags&FLAG_DATA != 0
}

func (p *Packet) IsAck() bool {
	return p.Flags&FLAG_ACK != 0
}

func (p *Packet) IsSyn() bool {
	return p.Flags&FLAG_SYN != 0
}

func (p *Packet) IsFin() bool {
	return p.Flags&FLAG_FIN != 0
}

func (p *Packet) String() string {
	flags := make([]string, 0, 4)
	if p.IsSyn() {
		flags = append(flags, "SYN")
	}
	if p.IsAck() {
		flags = append(flags, "ACK")
	}
	if p.IsData() {
		flags = append(flags, "DATA")
	}
	if p.IsFin() {
		flags = append(flags, "FIN")
	}
	return fmt.Sprintf("Packet(seq=%d, ack=%d, flags=[%s], window=%d, data_len=%d, checksum=%d)",
		p.SeqNum, p.AckNum, strings.Join(flags, ","), p.WindowSize, p.DataLength, p.Checksum)
}
