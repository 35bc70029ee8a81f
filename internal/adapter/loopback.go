// Package adapter provides a simulated BLE link for demos and
// integration tests: two in-process Transport façades exchanging wire
// bytes over buffered Go channels instead of real radios. It plays the
// role a platform-specific MeshProvider/VirtualConn plays in production:
// the façade stays oblivious to how bytes actually cross the air gap.
package adapter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pollinet/relay-core/internal/transport"
)

// Link is one directed channel of wire records between two simulated BLE
// peers, bounded like the real radio's MTU-paced air time would be.
type Link struct {
	ch chan []byte
}

// NewLink creates a Link with the given channel depth.
func NewLink(depth int) *Link {
	if depth <= 0 {
		depth = 1
	}
	return &Link{ch: make(chan []byte, depth)}
}

// Send enqueues data onto the link; if the link is saturated it first
// discards the oldest waiting record to make room — the same
// drop-oldest-at-capacity spirit the façade applies to its own
// queues, simulating a BLE link that cannot buffer indefinitely.
func (l *Link) Send(data []byte) {
	select {
	case l.ch <- data:
	default:
		select {
		case <-l.ch:
		default:
		}
		select {
		case l.ch <- data:
		default:
		}
	}
}

// Recv returns the next record on the link, if any is waiting.
func (l *Link) Recv() ([]byte, bool) {
	select {
	case data := <-l.ch:
		return data, true
	default:
		return nil, false
	}
}

// LoopbackPeer pairs one Transport façade with the Link it reads from and
// the Link it writes to, pumping between them on a fixed tick the way a
// platform adapter's scan/advertise loop would.
type LoopbackPeer struct {
	Name      string
	Transport *transport.Transport
	outLink   *Link
	inLink    *Link
}

// NewLoopbackPeer wires a Transport to its outbound and inbound links.
func NewLoopbackPeer(name string, t *transport.Transport, outLink, inLink *Link) *LoopbackPeer {
	return &LoopbackPeer{Name: name, Transport: t, outLink: outLink, inLink: inLink}
}

// PumpOnce drains one outbound wire record (if any) onto the peer's
// outbound link, and delivers one inbound wire record (if any) from the
// peer's inbound link into the façade via PushInbound. Call this on each
// tick of a demo's run loop.
func (p *LoopbackPeer) PumpOnce() {
	if rec, ok := p.Transport.NextOutbound(); ok {
		p.outLink.Send(rec)
	}
	if rec, ok := p.inLink.Recv(); ok {
		outcome, reason := p.Transport.PushInbound(rec)
		if outcome == transport.OutcomeRejected {
			log.Debug().Str("peer", p.Name).Str("reason", reason.String()).Msg("loopback: rejected inbound record")
		}
	}
}

// Run pumps the peer on interval until ctx is cancelled.
func (p *LoopbackPeer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Transport.Tick(now)
			p.PumpOnce()
		}
	}
}

// NewLoopbackPair builds two LoopbackPeers, A and B, sharing a pair of
// Links so fragments pushed by one appear as inbound to the other — the
// simplest possible two-device mesh for exercising a full S1/S2/S6
// round trip without a platform adapter.
func NewLoopbackPair(name1 string, t1 *transport.Transport, name2 string, t2 *transport.Transport, linkDepth int) (*LoopbackPeer, *LoopbackPeer) {
	aToB := NewLink(linkDepth)
	bToA := NewLink(linkDepth)
	peer1 := NewLoopbackPeer(name1, t1, aToB, bToA)
	peer2 := NewLoopbackPeer(name2, t2, bToA, aToB)
	return peer1, peer2
}
