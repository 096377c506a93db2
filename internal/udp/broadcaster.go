package udp

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster sends datagrams to a single destination.
type Broadcaster struct {
	dest string
	conn udpConn

	// OnSent, when set, is called by Run after each successful send.
	OnSent func(at time.Time)
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// PayloadFunc builds the datagram for one tick. seq starts at 1.
type PayloadFunc func(seq uint64) ([]byte, error)

// Run sends one payload per interval until ctx is done. Build and send
// failures are logged and do not stop the loop.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration, payload PayloadFunc) error {
	if interval <= 0 {
		return fmt.Errorf("udp: interval must be > 0")
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var seq uint64
	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		seq++
		p, err := payload(seq)
		if err == nil {
			err = b.Send(p)
		}
		if err == nil && len(p) > 0 && b.OnSent != nil {
			b.OnSent(time.Now().UTC())
		}
		// Only log transitions so a missing receiver does not flood the log.
		if err != nil && err.Error() != lastErr {
			log.Printf("udp: send to %s failed: %v", b.dest, err)
			lastErr = err.Error()
		} else if err == nil && lastErr != "" {
			log.Printf("udp: send to %s recovered", b.dest)
			lastErr = ""
		}
	}
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
