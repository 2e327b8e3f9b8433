package aggregator

import (
	"context"
	"encoding/json"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/mpifr-bdr/reynard/internal/metrics"
)

// minRecvBuffer is the receive-buffer floor spec.md §4.2 requires.
const minRecvBuffer = 32 * 1024

// ingestLoop joins the configured multicast group and feeds decoded
// datagrams to the tick loop's coalescing-latest slot. Grounded on the
// corpus's context-cancellable capture-goroutine shape
// (AFPacketCapturer.Capture: open, loop-read, push to channel, retry
// on error) but necessarily hand-rolled on net/golang.org/x/net/ipv4:
// no example repo performs IP multicast datagram group-join, since the
// corpus's packet capture is raw-Ethernet-frame (gopacket/afpacket), a
// different concern from a UDP multicast socket.
func (a *Aggregator) ingestLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.ingestOnce(ctx); err != nil {
			a.log.Warnf("aggregator: multicast ingest error: %v; retrying in 5s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			a.markStale()
		}
	}
}

func (a *Aggregator) ingestOnce(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", a.cfg.MulticastAddr)
	if err != nil {
		return err
	}

	var iface *net.Interface
	if a.cfg.Interface != "" {
		iface, err = net.InterfaceByName(a.cfg.Interface)
		if err != nil {
			return err
		}
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	packetConn, err := lc.ListenPacket(ctx, "udp4", udpAddr.String())
	if err != nil {
		return err
	}
	defer packetConn.Close()

	pc := ipv4.NewPacketConn(packetConn)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: udpAddr.IP}); err != nil {
		return err
	}
	defer pc.LeaveGroup(iface, &net.UDPAddr{IP: udpAddr.IP})
	if err := packetConn.(*net.UDPConn).SetReadBuffer(minRecvBuffer); err != nil {
		a.log.Warnf("aggregator: SetReadBuffer: %v", err)
	}

	buf := make([]byte, minRecvBuffer)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = packetConn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := packetConn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		raw, err := decodeDatagram(buf[:n])
		if err != nil {
			a.log.Warnf("aggregator: decode failure: %v", err)
			metrics.MulticastDecodeErrorsTotal.Inc()
			continue
		}
		a.deliver(raw)
	}
}

func decodeDatagram(b []byte) (RawRecord, error) {
	var raw RawRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// reuseAddrControl sets SO_REUSEADDR before bind so multiple instances
// (or a restarting instance) can rejoin the same multicast port
// without waiting out TIME_WAIT.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
