package rdt

import (
	"fmt"
	"net"
	"sync"
	"time"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
)

const (
	windowPollInterval  = 10 * time.Millisecond
	interPacketDelay    = 10 * time.Millisecond
	ackWaitPollInterval = 100 * time.Millisecond
	timeoutScanInterval = 100 * time.Millisecond
	socketReadTimeout   = 500 * time.Millisecond
)

// SenderStats are read after Stop; concurrent reads are best-effort.
type SenderStats struct {
	PacketsSent     int
	Retransmissions int
	AcksReceived    int
}

type inflightPacket struct {
	raw    []byte
	sentAt time.Time
}

// Sender is the sliding-window side of the transport. It segments a byte
// sequence into DATA packets, keeps an in-flight window, and retransmits
// on per-packet timeout until every packet is cumulatively acknowledged.
// One-shot: Start, one SendData, Stop.
type Sender struct {
	conn          *net.UDPConn
	destAddr      *net.UDPAddr
	windowSize    uint32
	timeout       time.Duration
	maxPacketSize int

	// Protected by mu
	base    uint32
	nextSeq uint32
	buffer  map[uint32]*inflightPacket
	running bool
	stats   SenderStats
	mu      sync.Mutex

	wg sync.WaitGroup
}

// NewSender wires a sender onto an externally owned datagram socket.
// The socket is shared with the ACK return path and is not closed here.
func NewSender(conn *net.UDPConn, destAddr *net.UDPAddr, windowSize int, timeout time.Duration, maxPacketSize int) *Sender {
	return &Sender{
		conn:          conn,
		destAddr:      destAddr,
		windowSize:    uint32(windowSize),
		timeout:       timeout,
		maxPacketSize: maxPacketSize,
		buffer:        make(map[uint32]*inflightPacket),
	}
}

// Start spawns the ACK-ingest worker and the timeout scanner.
func (s *Sender) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.receiveAcks()
	go s.checkTimeouts()

	logger.Info("[Sender] Started (window=%d, timeout=%s, mss=%d)", s.windowSize, s.timeout, s.maxPacketSize)
}

// Stop signals the workers to halt, joins them and reports statistics.
func (s *Sender) Stop() SenderStats {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()

	stats := s.Stats()
	logger.Info("[Sender] Stopped. Stats: sent=%d retrans=%d acks=%d",
		stats.PacketsSent, stats.Retransmissions, stats.AcksReceived)
	return stats
}

// Stats returns a copy of the counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Acked returns how many packets have been cumulatively acknowledged.
func (s *Sender) Acked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.base)
}

func (s *Sender) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SendData transmits data reliably and blocks until every byte has been
// cumulatively acknowledged. May be called once per instance.
func (s *Sender) SendData(data []byte) error {
	if !s.isRunning() {
		return fmt.Errorf("sender not started")
	}
	if len(data) == 0 {
		return nil
	}

	chunks := (len(data) + s.maxPacketSize - 1) / s.maxPacketSize
	logger.Info("[Sender] Sending %d bytes in %d packets", len(data), chunks)

	for off := 0; off < len(data); off += s.maxPacketSize {
		end := off + s.maxPacketSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		// Wait until the window has space.
		for {
			s.mu.Lock()
			if s.nextSeq < s.base+s.windowSize {
				break
			}
			s.mu.Unlock()
			time.Sleep(windowPollInterval)
		}

		// Window admitted; mu is held.
		packet := protocol.NewDataPacket(s.nextSeq, chunk, uint16(s.windowSize))
		raw := packet.Serialize()
		seq := s.nextSeq
		s.buffer[seq] = &inflightPacket{raw: raw, sentAt: time.Now()}
		s.nextSeq++
		s.mu.Unlock()

		s.transmit(raw, seq, false)

		// Small pacing delay to avoid bursty loss on loopback.
		time.Sleep(interPacketDelay)
	}

	// Wait until the window drains.
	logger.Debug("[Sender] Waiting for all ACKs")
	for {
		s.mu.Lock()
		done := s.base >= s.nextSeq
		s.mu.Unlock()
		if done {
			break
		}
		time.Sleep(ackWaitPollInterval)
	}

	logger.Info("[Sender] All data acknowledged")
	return nil
}

// transmit writes pre-serialized packet bytes to the socket. A failed
// write is logged and not counted; the timeout scanner retries it.
func (s *Sender) transmit(raw []byte, seq uint32, retransmit bool) {
	if _, err := s.conn.WriteToUDP(raw, s.destAddr); err != nil {
		logger.Error("[Sender] Error sending packet seq=%d: %v", seq, err)
		return
	}

	s.mu.Lock()
	s.stats.PacketsSent++
	s.mu.Unlock()

	if retransmit {
		logger.Debug("[Sender] Retransmitted seq=%d (%d bytes)", seq, len(raw))
	} else {
		logger.Debug("[Sender] Sent seq=%d (%d bytes)", seq, len(raw))
	}
}

func (s *Sender) receiveAcks() {
	defer s.wg.Done()

	buf := make([]byte, protocol.HeaderSize+s.maxPacketSize+1024)
	for s.isRunning() {
		s.conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.isRunning() {
				logger.Error("[Sender] Error receiving ACK: %v", err)
			}
			time.Sleep(socketReadTimeout)
			continue
		}

		packet := protocol.Deserialize(buf[:n])
		if packet != nil && packet.IsAck() && !packet.IsCorrupt() {
			s.handleAck(packet)
		}
	}
}

// handleAck applies a cumulative acknowledgment: ack=a confirms every
// sequence number in [0, a]. Stale ACKs below base are counted and ignored.
func (s *Sender) handleAck(packet *protocol.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.AcksReceived++
	ackNum := packet.AckNum

	if ackNum >= s.base {
		for seq := s.base; seq <= ackNum; seq++ {
			delete(s.buffer, seq)
		}
		s.base = ackNum + 1
		logger.Debug("[Sender] ACK=%d, window moved: base=%d next=%d", ackNum, s.base, s.nextSeq)
	}
}

// checkTimeouts resends, every scan interval, the in-flight packets whose
// per-packet timer expired. Retransmissions reuse the stored bytes so the
// datagram stays identical.
func (s *Sender) checkTimeouts() {
	defer s.wg.Done()

	ticker := time.NewTicker(timeoutScanInterval)
	defer ticker.Stop()

	for s.isRunning() {
		<-ticker.C

		now := time.Now()
		type resend struct {
			seq uint32
			raw []byte
		}
		var expired []resend

		s.mu.Lock()
		for seq, entry := range s.buffer {
			if now.Sub(entry.sentAt) > s.timeout {
				entry.sentAt = now
				s.stats.Retransmissions++
				expired = append(expired, resend{seq: seq, raw: entry.raw})
			}
		}
		s.mu.Unlock()

		for _, r := range expired {
			logger.Debug("[Sender] TIMEOUT: retransmitting seq=%d", r.seq)
			s.transmit(r.raw, r.seq, true)
		}
	}
}
