package rdt

import (
	"bytes"
	"net"
	"testing"
	"time"

	"rdt-transfer-go/source/protocol"
)

func localConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to bind UDP socket: %v", err)
	}
	return conn
}

func TestCumulativeAckAdvancesBase(t *testing.T) {
	s := NewSender(nil, nil, 5, time.Second, 4)
	s.base = 0
	s.nextSeq = 3
	for seq := uint32(0); seq < 3; seq++ {
		s.buffer[seq] = &inflightPacket{raw: []byte{byte(seq)}, sentAt: time.Now()}
	}

	s.handleAck(protocol.NewAckPacket(1, 5))

	if s.base != 2 {
		t.Errorf("base = %d, want 2", s.base)
	}
	if _, ok := s.buffer[0]; ok {
		t.Error("seq 0 still buffered after cumulative ACK 1")
	}
	if _, ok := s.buffer[1]; ok {
		t.Error("seq 1 still buffered after cumulative ACK 1")
	}
	if _, ok := s.buffer[2]; !ok {
		t.Error("seq 2 dropped by ACK 1")
	}
	if s.stats.AcksReceived != 1 {
		t.Errorf("AcksReceived = %d, want 1", s.stats.AcksReceived)
	}
}

func TestStaleAckIgnoredButCounted(t *testing.T) {
	s := NewSender(nil, nil, 5, time.Second, 4)
	s.base = 4
	s.nextSeq = 6
	s.buffer[4] = &inflightPacket{raw: []byte{4}, sentAt: time.Now()}
	s.buffer[5] = &inflightPacket{raw: []byte{5}, sentAt: time.Now()}

	s.handleAck(protocol.NewAckPacket(2, 5))

	if s.base != 4 {
		t.Errorf("base moved on stale ACK: %d", s.base)
	}
	if len(s.buffer) != 2 {
		t.Errorf("buffer size = %d, want 2", len(s.buffer))
	}
	if s.stats.AcksReceived != 1 {
		t.Errorf("AcksReceived = %d, want 1", s.stats.AcksReceived)
	}
}

func TestSendBeforeStart(t *testing.T) {
	conn := localConn(t)
	defer conn.Close()

	s := NewSender(conn, conn.LocalAddr().(*net.UDPAddr), 5, time.Second, 4)
	if err := s.SendData([]byte("X")); err == nil {
		t.Error("Expected error sending before Start")
	}
}

func TestEmptyInputSendsNothing(t *testing.T) {
	senderConn := localConn(t)
	defer senderConn.Close()
	peerConn := localConn(t)
	defer peerConn.Close()

	s := NewSender(senderConn, peerConn.LocalAddr().(*net.UDPAddr), 5, time.Second, 4)
	s.Start()
	if err := s.SendData(nil); err != nil {
		t.Fatalf("SendData(nil) error: %v", err)
	}
	stats := s.Stop()

	if stats.PacketsSent != 0 {
		t.Errorf("PacketsSent = %d, want 0", stats.PacketsSent)
	}
}

// The peer stays silent past the timeout, then ACKs. The retransmitted
// datagram must be byte-identical to the first transmission.
func TestTimeoutRetransmitsIdenticalBytes(t *testing.T) {
	senderConn := localConn(t)
	defer senderConn.Close()
	peerConn := localConn(t)
	defer peerConn.Close()

	s := NewSender(senderConn, peerConn.LocalAddr().(*net.UDPAddr), 5, 200*time.Millisecond, 4)
	s.Start()

	done := make(chan error, 1)
	go func() {
		done <- s.SendData([]byte("ABCD"))
	}()

	buf := make([]byte, 2048)

	peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, senderAddr, err := peerConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Did not receive first transmission: %v", err)
	}
	first := make([]byte, n)
	copy(first, buf[:n])

	peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err = peerConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Did not receive retransmission: %v", err)
	}
	if !bytes.Equal(first, buf[:n]) {
		t.Error("Retransmission differs from original datagram")
	}

	ack := protocol.NewAckPacket(0, 5)
	if _, err := peerConn.WriteToUDP(ack.Serialize(), senderAddr); err != nil {
		t.Fatalf("Failed to send ACK: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendData error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SendData did not return after ACK")
	}

	stats := s.Stop()
	if stats.Retransmissions < 1 {
		t.Errorf("Retransmissions = %d, want >= 1", stats.Retransmissions)
	}
}

// With no ACKs flowing, at most W distinct sequence numbers may be in
// flight; ACKs open the window further.
func TestWindowBound(t *testing.T) {
	senderConn := localConn(t)
	defer senderConn.Close()
	peerConn := localConn(t)
	defer peerConn.Close()

	s := NewSender(senderConn, peerConn.LocalAddr().(*net.UDPAddr), 2, 10*time.Second, 1)
	s.Start()

	done := make(chan error, 1)
	go func() {
		done <- s.SendData([]byte("ABCDE"))
	}()

	readSeqs := func(deadline time.Duration) map[uint32]bool {
		seqs := make(map[uint32]bool)
		buf := make([]byte, 2048)
		end := time.Now().Add(deadline)
		for {
			peerConn.SetReadDeadline(end)
			n, _, err := peerConn.ReadFromUDP(buf)
			if err != nil {
				return seqs
			}
			p := protocol.Deserialize(buf[:n])
			if p != nil && p.IsData() {
				seqs[p.SeqNum] = true
			}
		}
	}

	senderAddr := senderConn.LocalAddr().(*net.UDPAddr)
	ack := func(n uint32) {
		peerConn.WriteToUDP(protocol.NewAckPacket(n, 2).Serialize(), senderAddr)
	}

	seqs := readSeqs(500 * time.Millisecond)
	if len(seqs) != 2 || !seqs[0] || !seqs[1] {
		t.Fatalf("Expected exactly seqs {0,1} in flight, got %v", seqs)
	}

	ack(1)
	seqs = readSeqs(500 * time.Millisecond)
	if len(seqs) != 2 || !seqs[2] || !seqs[3] {
		t.Fatalf("Expected seqs {2,3} after ACK 1, got %v", seqs)
	}

	ack(3)
	seqs = readSeqs(500 * time.Millisecond)
	if !seqs[4] {
		t.Fatalf("Expected seq 4 after ACK 3, got %v", seqs)
	}

	ack(4)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendData error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SendData did not return after final ACK")
	}

	stats := s.Stop()
	if stats.PacketsSent != 5 {
		t.Errorf("PacketsSent = %d, want 5", stats.PacketsSent)
	}
	if stats.Retransmissions != 0 {
		t.Errorf("Retransmissions = %d, want 0", stats.Retransmissions)
	}
}
