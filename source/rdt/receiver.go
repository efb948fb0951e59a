package rdt

import (
	"net"
	"sync"
	"time"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
)

const completionPollInterval = 100 * time.Millisecond

// ReceiverStats are read after Stop; concurrent reads are best-effort.
type ReceiverStats struct {
	PacketsReceived    int
	AcksSent           int
	DuplicatesReceived int
	CorruptReceived    int
}

// Receiver consumes datagrams, reassembles the byte stream in sender
// order across out-of-order arrivals, and emits cumulative ACKs.
// One-shot: Start, drain with ReceiveAll or TryReceive, Stop.
type Receiver struct {
	conn       *net.UDPConn
	windowSize uint16

	// Protected by mu
	expected      uint32
	outOfOrder    map[uint32][]byte
	deliveryQueue [][]byte
	running       bool
	stats         ReceiverStats
	mu            sync.Mutex

	wg sync.WaitGroup
}

// NewReceiver wires a receiver onto an externally owned datagram socket.
func NewReceiver(conn *net.UDPConn, windowSize int) *Receiver {
	return &Receiver{
		conn:       conn,
		windowSize: uint16(windowSize),
		outOfOrder: make(map[uint32][]byte),
	}
}

// Start spawns the datagram worker.
func (r *Receiver) Start() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.receivePackets()

	logger.Info("[Receiver] Started (window=%d)", r.windowSize)
}

// Stop signals the worker to halt, joins it and reports statistics.
func (r *Receiver) Stop() ReceiverStats {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()

	stats := r.Stats()
	logger.Info("[Receiver] Stopped. Stats: received=%d acks=%d duplicates=%d corrupt=%d",
		stats.PacketsReceived, stats.AcksSent, stats.DuplicatesReceived, stats.CorruptReceived)
	return stats
}

// Stats returns a copy of the counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Receiver) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// TryReceive pops the next in-order payload chunk without blocking.
// Returns nil when nothing is queued.
func (r *Receiver) TryReceive() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.deliveryQueue) == 0 {
		return nil
	}
	chunk := r.deliveryQueue[0]
	r.deliveryQueue = r.deliveryQueue[1:]
	return chunk
}

// ReceiveAll concatenates delivered payloads until the transfer goes
// quiet. The wire format carries no end-of-stream marker, so completion
// is inferred: once neither bytes are delivered nor packets arrive for
// the given timeout, whatever was collected is the transfer.
func (r *Receiver) ReceiveAll(timeout time.Duration) []byte {
	var all []byte
	lastActivity := time.Now()
	lastPacketCount := 0

	for {
		progressed := false
		for {
			chunk := r.TryReceive()
			if chunk == nil {
				break
			}
			all = append(all, chunk...)
			progressed = true
		}

		r.mu.Lock()
		packetCount := r.stats.PacketsReceived
		r.mu.Unlock()
		if packetCount > lastPacketCount {
			lastPacketCount = packetCount
			progressed = true
		}

		if progressed {
			lastActivity = time.Now()
			logger.Debug("[Receiver] Accumulated %d bytes so far", len(all))
		} else if time.Since(lastActivity) > timeout {
			break
		}

		time.Sleep(completionPollInterval)
	}

	logger.Info("[Receiver] Transfer considered complete: %d bytes", len(all))
	return all
}

func (r *Receiver) receivePackets() {
	defer r.wg.Done()

	buf := make([]byte, 65535)
	for r.isRunning() {
		r.conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
		n, senderAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if r.isRunning() {
				logger.Error("[Receiver] Error receiving packet: %v", err)
			}
			time.Sleep(socketReadTimeout)
			continue
		}

		packet := protocol.Deserialize(buf[:n])
		if packet == nil || !packet.IsData() {
			continue
		}
		r.handleDataPacket(packet, senderAddr)
	}
}

func (r *Receiver) handleDataPacket(packet *protocol.Packet, senderAddr *net.UDPAddr) {
	if packet.IsCorrupt() {
		r.mu.Lock()
		r.stats.CorruptReceived++
		r.mu.Unlock()
		logger.Debug("[Receiver] Corrupted packet seq=%d, discarding", packet.SeqNum)
		return
	}

	seqNum := packet.SeqNum

	r.mu.Lock()
	r.stats.PacketsReceived++
	logger.Debug("[Receiver] Received seq=%d, expected=%d", seqNum, r.expected)

	if seqNum < r.expected {
		// Already delivered; the ACK for it may have been lost.
		r.stats.DuplicatesReceived++
		ackNum := r.expected - 1
		r.mu.Unlock()
		r.sendAck(ackNum, senderAddr)
		return
	}

	r.outOfOrder[seqNum] = packet.Data

	for {
		data, ok := r.outOfOrder[r.expected]
		if !ok {
			break
		}
		r.deliveryQueue = append(r.deliveryQueue, data)
		delete(r.outOfOrder, r.expected)
		logger.Debug("[Receiver] Delivered seq=%d to application", r.expected)
		r.expected++
	}

	// An ACK of k means "delivered all of 0..k". Until seq 0 has been
	// delivered there is no truthful k, so no ACK is sent and the sender's
	// timeout recovers the gap.
	if r.expected == 0 {
		r.mu.Unlock()
		return
	}
	ackNum := r.expected - 1
	r.mu.Unlock()

	r.sendAck(ackNum, senderAddr)
}

func (r *Receiver) sendAck(ackNum uint32, destAddr *net.UDPAddr) {
	ack := protocol.NewAckPacket(ackNum, r.windowSize)
	if _, err := r.conn.WriteToUDP(ack.Serialize(), destAddr); err != nil {
		logger.Error("[Receiver] Error sending ACK: %v", err)
		return
	}

	r.mu.Lock()
	r.stats.AcksSent++
	r.mu.Unlock()

	logger.Debug("[Receiver] Sent ACK=%d", ackNum)
}
