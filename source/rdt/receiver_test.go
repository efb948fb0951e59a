package rdt

import (
	"bytes"
	"net"
	"testing"
	"time"

	"rdt-transfer-go/source/protocol"
)

// injector is a bare UDP peer used to feed the receiver hand-built
// datagrams and observe the ACKs coming back.
type injector struct {
	conn     *net.UDPConn
	destAddr *net.UDPAddr
}

func newInjector(t *testing.T, destConn *net.UDPConn) *injector {
	t.Helper()
	return &injector{
		conn:     localConn(t),
		destAddr: destConn.LocalAddr().(*net.UDPAddr),
	}
}

func (in *injector) sendRaw(t *testing.T, raw []byte) {
	t.Helper()
	if _, err := in.conn.WriteToUDP(raw, in.destAddr); err != nil {
		t.Fatalf("Failed to inject datagram: %v", err)
	}
}

func (in *injector) sendData(t *testing.T, seq uint32, data []byte) {
	in.sendRaw(t, protocol.NewDataPacket(seq, data, 5).Serialize())
}

// readAck returns the next ACK packet, or nil when none arrives in time.
func (in *injector) readAck(t *testing.T, wait time.Duration) *protocol.Packet {
	t.Helper()
	buf := make([]byte, 2048)
	in.conn.SetReadDeadline(time.Now().Add(wait))
	n, _, err := in.conn.ReadFromUDP(buf)
	if err != nil {
		return nil
	}
	return protocol.Deserialize(buf[:n])
}

func TestInOrderDelivery(t *testing.T) {
	recvConn := localConn(t)
	defer recvConn.Close()

	r := NewReceiver(recvConn, 5)
	r.Start()
	defer r.Stop()

	in := newInjector(t, recvConn)
	defer in.conn.Close()

	in.sendData(t, 0, []byte("ABCD"))
	ack := in.readAck(t, time.Second)
	if ack == nil || !ack.IsAck() || ack.AckNum != 0 {
		t.Fatalf("Expected ACK 0, got %v", ack)
	}

	in.sendData(t, 1, []byte("EFGH"))
	ack = in.readAck(t, time.Second)
	if ack == nil || ack.AckNum != 1 {
		t.Fatalf("Expected ACK 1, got %v", ack)
	}

	got := r.ReceiveAll(300 * time.Millisecond)
	if !bytes.Equal(got, []byte("ABCDEFGH")) {
		t.Errorf("Delivered %q, want ABCDEFGH", got)
	}
}

func TestOutOfOrderReassembly(t *testing.T) {
	recvConn := localConn(t)
	defer recvConn.Close()

	r := NewReceiver(recvConn, 5)
	r.Start()
	defer r.Stop()

	in := newInjector(t, recvConn)
	defer in.conn.Close()

	in.sendData(t, 2, []byte("IJ"))
	in.sendData(t, 1, []byte("EFGH"))

	// Nothing has been delivered yet, so no ACK may be emitted.
	if ack := in.readAck(t, 300*time.Millisecond); ack != nil {
		t.Fatalf("Got ACK %v before seq 0 was delivered", ack)
	}

	in.sendData(t, 0, []byte("ABCD"))
	ack := in.readAck(t, time.Second)
	if ack == nil || ack.AckNum != 2 {
		t.Fatalf("Expected cumulative ACK 2, got %v", ack)
	}

	for i, want := range [][]byte{[]byte("ABCD"), []byte("EFGH"), []byte("IJ")} {
		var chunk []byte
		for attempt := 0; attempt < 10 && chunk == nil; attempt++ {
			chunk = r.TryReceive()
			if chunk == nil {
				time.Sleep(50 * time.Millisecond)
			}
		}
		if !bytes.Equal(chunk, want) {
			t.Errorf("Chunk %d = %q, want %q", i, chunk, want)
		}
	}
	if extra := r.TryReceive(); extra != nil {
		t.Errorf("Unexpected extra chunk %q", extra)
	}
}

func TestDuplicateCountedAndReAcked(t *testing.T) {
	recvConn := localConn(t)
	defer recvConn.Close()

	r := NewReceiver(recvConn, 5)
	r.Start()

	in := newInjector(t, recvConn)
	defer in.conn.Close()

	raw := protocol.NewDataPacket(0, []byte("ABCD"), 5).Serialize()

	in.sendRaw(t, raw)
	ack := in.readAck(t, time.Second)
	if ack == nil || ack.AckNum != 0 {
		t.Fatalf("Expected ACK 0 for first arrival, got %v", ack)
	}

	in.sendRaw(t, raw)
	ack = in.readAck(t, time.Second)
	if ack == nil || ack.AckNum != 0 {
		t.Fatalf("Expected re-emitted ACK 0 for duplicate, got %v", ack)
	}

	got := r.ReceiveAll(300 * time.Millisecond)
	if !bytes.Equal(got, []byte("ABCD")) {
		t.Errorf("Delivered %q, want ABCD exactly once", got)
	}

	stats := r.Stop()
	if stats.DuplicatesReceived != 1 {
		t.Errorf("DuplicatesReceived = %d, want 1", stats.DuplicatesReceived)
	}
	if stats.PacketsReceived != 2 {
		t.Errorf("PacketsReceived = %d, want 2", stats.PacketsReceived)
	}
	if stats.AcksSent != 2 {
		t.Errorf("AcksSent = %d, want 2", stats.AcksSent)
	}
}

func TestCorruptPacketDiscardedSilently(t *testing.T) {
	recvConn := localConn(t)
	defer recvConn.Close()

	r := NewReceiver(recvConn, 5)
	r.Start()

	in := newInjector(t, recvConn)
	defer in.conn.Close()

	raw := protocol.NewDataPacket(0, []byte("ABCD"), 5).Serialize()
	corrupted := make([]byte, len(raw))
	copy(corrupted, raw)
	corrupted[protocol.HeaderSize] ^= 0xFF

	in.sendRaw(t, corrupted)

	// Nothing delivered yet, so the corrupt arrival must stay silent.
	if ack := in.readAck(t, 300*time.Millisecond); ack != nil {
		t.Fatalf("Got ACK %v for corrupt packet", ack)
	}
	if chunk := r.TryReceive(); chunk != nil {
		t.Fatalf("Corrupt payload surfaced: %q", chunk)
	}

	// The clean retransmission recovers the transfer.
	in.sendRaw(t, raw)
	ack := in.readAck(t, time.Second)
	if ack == nil || ack.AckNum != 0 {
		t.Fatalf("Expected ACK 0 after clean retransmission, got %v", ack)
	}

	stats := r.Stop()
	if stats.CorruptReceived != 1 {
		t.Errorf("CorruptReceived = %d, want 1", stats.CorruptReceived)
	}
	if stats.PacketsReceived != 1 {
		t.Errorf("PacketsReceived = %d, want 1", stats.PacketsReceived)
	}
}

func TestNonDataPacketsIgnored(t *testing.T) {
	recvConn := localConn(t)
	defer recvConn.Close()

	r := NewReceiver(recvConn, 5)
	r.Start()

	in := newInjector(t, recvConn)
	defer in.conn.Close()

	in.sendRaw(t, protocol.NewAckPacket(3, 5).Serialize())
	in.sendRaw(t, []byte{0x01, 0x02})

	if ack := in.readAck(t, 300*time.Millisecond); ack != nil {
		t.Fatalf("Receiver responded to non-DATA traffic: %v", ack)
	}

	stats := r.Stop()
	if stats.PacketsReceived != 0 {
		t.Errorf("PacketsReceived = %d, want 0", stats.PacketsReceived)
	}
}
