package connector

import (
	"bytes"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
)

const drainInterval = 50 * time.Millisecond

// Config holds the impairment knobs. Rates are probabilities in [0, 1],
// applied independently per datagram in each direction; delays are in
// seconds to match the command-line surface.
type Config struct {
	ClientPort     int     `yaml:"client_port"`
	ServerHost     string  `yaml:"server_host"`
	ServerPort     int     `yaml:"server_port"`
	LossRate       float64 `yaml:"loss_rate"`
	CorruptionRate float64 `yaml:"corruption_rate"`
	DelayMin       float64 `yaml:"delay_min"`
	DelayMax       float64 `yaml:"delay_max"`
	ReorderRate    float64 `yaml:"reorder_rate"`
}

type Stats struct {
	PacketsReceived  int
	PacketsForwarded int
	PacketsDropped   int
	PacketsCorrupted int
	PacketsDelayed   int
	PacketsReordered int
}

type delayedDatagram struct {
	deliverAt time.Time
	data      []byte
	destAddr  *net.UDPAddr
	conn      *net.UDPConn
	direction string
	info      string
}

// Connector is a middlebox between client and server that drops,
// corrupts, delays and reorders datagrams in both directions. The
// engine under test must survive everything it does.
type Connector struct {
	cfg        Config
	serverAddr *net.UDPAddr
	clientConn *net.UDPConn
	serverConn *net.UDPConn

	// Protected by mu
	clientAddr  *net.UDPAddr
	delayBuffer []delayedDatagram
	running     bool
	stats       Stats
	mu          sync.Mutex

	wg sync.WaitGroup
}

func New(cfg Config) (*Connector, error) {
	serverAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server address: %w", err)
	}

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.ClientPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind client socket: %w", err)
	}

	serverConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		clientConn.Close()
		return nil, fmt.Errorf("failed to bind server socket: %w", err)
	}

	return &Connector{
		cfg:        cfg,
		serverAddr: serverAddr,
		clientConn: clientConn,
		serverConn: serverConn,
	}, nil
}

// ClientPort reports the bound client-facing port (useful when the
// config asked for port 0).
func (c *Connector) ClientPort() int {
	return c.clientConn.LocalAddr().(*net.UDPAddr).Port
}

func (c *Connector) Start() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.wg.Add(3)
	go c.forwardClientToServer()
	go c.forwardServerToClient()
	go c.processDelayBuffer()

	logger.Info("[Connector] Started: client port %d -> %s", c.ClientPort(), c.serverAddr)
	logger.Info("[Connector] Loss=%.1f%% Corruption=%.1f%% Delay=%.2fs-%.2fs Reorder=%.1f%%",
		c.cfg.LossRate*100, c.cfg.CorruptionRate*100, c.cfg.DelayMin, c.cfg.DelayMax, c.cfg.ReorderRate*100)
}

func (c *Connector) Stop() Stats {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	c.clientConn.Close()
	c.serverConn.Close()

	stats := c.Stats()
	logger.Info("[Connector] Stopped. Stats: received=%d forwarded=%d dropped=%d corrupted=%d delayed=%d reordered=%d",
		stats.PacketsReceived, stats.PacketsForwarded, stats.PacketsDropped,
		stats.PacketsCorrupted, stats.PacketsDelayed, stats.PacketsReordered)
	return stats
}

func (c *Connector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Connector) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Connector) forwardClientToServer() {
	defer c.wg.Done()

	buf := make([]byte, 65535)
	for c.isRunning() {
		c.clientConn.SetReadDeadline(time.Now().Add(time.Second))
		n, clientAddr, err := c.clientConn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if c.isRunning() {
				logger.Error("[Connector] Error in client->server: %v", err)
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		// Remember the client return path.
		c.mu.Lock()
		c.clientAddr = clientAddr
		c.stats.PacketsReceived++
		c.mu.Unlock()
		metricReceived.Inc()

		c.processPacket(data, c.serverAddr, c.serverConn, "C->S")
	}
}

func (c *Connector) forwardServerToClient() {
	defer c.wg.Done()

	buf := make([]byte, 65535)
	for c.isRunning() {
		c.serverConn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := c.serverConn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if c.isRunning() {
				logger.Error("[Connector] Error in server->client: %v", err)
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		c.mu.Lock()
		clientAddr := c.clientAddr
		c.stats.PacketsReceived++
		c.mu.Unlock()
		metricReceived.Inc()

		if clientAddr == nil {
			// No client seen yet; nowhere to forward.
			continue
		}
		c.processPacket(data, clientAddr, c.clientConn, "S->C")
	}
}

// processPacket runs one datagram through the impairment pipeline.
func (c *Connector) processPacket(data []byte, destAddr *net.UDPAddr, conn *net.UDPConn, direction string) {
	info := describe(data)

	if rand.Float64() < c.cfg.LossRate {
		c.mu.Lock()
		c.stats.PacketsDropped++
		c.mu.Unlock()
		metricDropped.Inc()
		logger.Debug("[Connector] %s DROP: %s", direction, info)
		return
	}

	if rand.Float64() < c.cfg.CorruptionRate {
		data = corruptDatagram(data)
		c.mu.Lock()
		c.stats.PacketsCorrupted++
		c.mu.Unlock()
		metricCorrupted.Inc()
		logger.Debug("[Connector] %s CORRUPT: %s", direction, info)
	}

	reorder := rand.Float64() < c.cfg.ReorderRate
	if reorder || c.cfg.DelayMax > 0 {
		delay := c.cfg.DelayMin + rand.Float64()*(c.cfg.DelayMax-c.cfg.DelayMin)
		if delay > 0 {
			c.mu.Lock()
			c.stats.PacketsDelayed++
			c.mu.Unlock()
			metricDelayed.Inc()
		}

		if reorder {
			// Extra delay pushes this datagram behind its successors.
			delay += 0.5 + rand.Float64()
			c.mu.Lock()
			c.stats.PacketsReordered++
			c.mu.Unlock()
			metricReordered.Inc()
		}

		c.mu.Lock()
		c.delayBuffer = append(c.delayBuffer, delayedDatagram{
			deliverAt: time.Now().Add(time.Duration(delay * float64(time.Second))),
			data:      data,
			destAddr:  destAddr,
			conn:      conn,
			direction: direction,
			info:      info,
		})
		c.mu.Unlock()

		if delay > 0 {
			logger.Debug("[Connector] %s DELAY: %s by %.2fs", direction, info, delay)
		}
		return
	}

	c.sendDatagram(data, destAddr, conn, direction, info)
}

// corruptDatagram flips one to three random bytes of a copy.
func corruptDatagram(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	corrupted := make([]byte, len(data))
	copy(corrupted, data)

	// Flips can cancel each other out; retry until the copy differs.
	for bytes.Equal(corrupted, data) {
		flips := 1 + rand.Intn(3)
		for i := 0; i < flips; i++ {
			pos := rand.Intn(len(corrupted))
			corrupted[pos] ^= byte(1 + rand.Intn(255))
		}
	}
	return corrupted
}

func (c *Connector) processDelayBuffer() {
	defer c.wg.Done()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for c.isRunning() {
		<-ticker.C

		now := time.Now()
		var ready []delayedDatagram

		c.mu.Lock()
		remaining := c.delayBuffer[:0]
		for _, d := range c.delayBuffer {
			if d.deliverAt.Before(now) || d.deliverAt.Equal(now) {
				ready = append(ready, d)
			} else {
				remaining = append(remaining, d)
			}
		}
		c.delayBuffer = remaining
		c.mu.Unlock()

		for _, d := range ready {
			c.sendDatagram(d.data, d.destAddr, d.conn, d.direction, d.info)
		}
	}
}

func (c *Connector) sendDatagram(data []byte, destAddr *net.UDPAddr, conn *net.UDPConn, direction, info string) {
	if _, err := conn.WriteToUDP(data, destAddr); err != nil {
		logger.Error("[Connector] Error sending packet: %v", err)
		return
	}

	c.mu.Lock()
	c.stats.PacketsForwarded++
	c.mu.Unlock()
	metricForwarded.Inc()

	logger.Debug("[Connector] %s FWD: %s", direction, info)
}

// describe decodes just enough of a datagram for log lines.
func describe(data []byte) string {
	packet := protocol.Deserialize(data)
	if packet == nil {
		return "invalid"
	}
	if packet.IsData() {
		return fmt.Sprintf("seq=%d", packet.SeqNum)
	}
	if packet.IsAck() {
		return fmt.Sprintf("ack=%d", packet.AckNum)
	}
	return "unknown"
}
