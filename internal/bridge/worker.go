// Package bridge implements the per-address-family worker of spec.md
// section 4.8: it owns the reusable decode/encode state and the receive
// and send buffers, waits for readable interface sockets via the readiness
// notifier, and fans each received datagram out to the interface's peers,
// applying per-peer outbound filtering.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/mdns-bridge/bridge/internal/filter"
	"github.com/mdns-bridge/bridge/internal/iface"
	"github.com/mdns-bridge/bridge/internal/wire"
)

// Notifier is the subset of *socket.Notifier the worker needs, so tests can
// substitute a fake without real file descriptors.
type Notifier interface {
	Register(fd, index int) error
	Wait() ([]int, error)
	Close() error
}

// Worker runs the receive/decode/fan-out loop for a single address family
// over a fixed set of interfaces (spec.md section 4.8). Within one Worker
// all I/O and codec work happens on a single goroutine; it holds no locks
// because nothing else touches its state.
type Worker struct {
	Family     iface.Family
	Interfaces []*iface.Interface
	Notifier   Notifier

	// FilteringDisabled mirrors the global `disable-packet-filtering`
	// configuration key: when true, every received datagram is forwarded
	// to every peer verbatim, with no decode/encode at all.
	FilteringDisabled bool

	Policy *filter.Policy
	Warn   bool
	Logger logging.Logger

	state   *wire.State
	recvBuf []byte
	sendBuf []byte
}

// NewWorker constructs a worker and registers every one of its interfaces'
// sockets with the notifier, per spec.md section 4.8 ("At startup it
// registers every one of its family's interface sockets with the kernel
// readiness notifier").
func NewWorker(family iface.Family, ifaces []*iface.Interface, notifier Notifier, policy *filter.Policy, disableFiltering, warn bool, logger logging.Logger) (*Worker, error) {
	w := &Worker{
		Family:            family,
		Interfaces:        ifaces,
		Notifier:          notifier,
		FilteringDisabled: disableFiltering,
		Policy:            policy,
		Warn:              warn,
		Logger:            logger,
		state:             wire.NewState(),
		recvBuf:           make([]byte, wire.MaxDatagramSize),
		sendBuf:           make([]byte, 0, wire.MaxDatagramSize),
	}

	if w.Warn {
		w.state.OnUnknown = func(section string, recordType uint16) {
			logging.DebugString(w.Logger, fmt.Sprintf("dropped unknown %s record type %d", section, recordType))
		}
	}

	for i, ifc := range ifaces {
		pf := ifc.PerFamily(family)
		if !pf.Enabled || pf.Conn == nil {
			continue
		}
		if err := notifier.Register(pf.Conn.Fd(), i); err != nil {
			return nil, fmt.Errorf("bridge: register %s/%s: %w", ifc.Name, family, err)
		}
	}

	return w, nil
}

// Run executes the worker's main loop until ctx is canceled. ctx is checked
// only between readiness waits, and the wait has no timeout, so a canceled
// Run returns once its current wait completes. On SIGTERM/SIGINT the
// command exits the process directly rather than waiting for Run to return.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready, err := w.Notifier.Wait()
		if err != nil {
			logging.Log(w.Logger, "bridge: readiness wait failed: %s", err)
			continue
		}

		for _, idx := range ready {
			w.handleReady(idx)
		}
	}
}

func (w *Worker) handleReady(idx int) {
	src := w.Interfaces[idx]
	pf := src.PerFamily(w.Family)

	n, err := pf.Conn.ReadFrom(w.recvBuf)
	if err != nil {
		logging.Log(w.Logger, "bridge: recvfrom on %s/%s: %s", src.Name, w.Family, err)
		return
	}
	datagram := w.recvBuf[:n]

	if w.FilteringDisabled {
		w.forwardVerbatim(pf, datagram)
		return
	}

	ok, err := w.state.Decode(datagram, w.Policy, src.InboundFilter)
	if err != nil {
		if w.Warn || !errors.Is(err, wire.ErrMalformed) {
			logging.Log(w.Logger, "bridge: malformed packet from %s/%s: %s", src.Name, w.Family, err)
		}
		return
	}
	if !ok {
		return
	}

	changed := w.filteringChanged(datagram)

	if pf.PeerNoFilterCount > 0 {
		var out []byte
		sent := true
		if changed {
			out, sent = w.state.Encode(w.sendBuf[:0], nil)
		} else {
			out = datagram
		}
		if sent {
			w.sendToUnfiltered(pf, out)
		}
	}

	for _, f := range pf.PeerFilters {
		out, sent := w.state.Encode(w.sendBuf[:0], f)
		if !sent {
			continue
		}
		w.sendToFilter(pf, f, out)
	}
}

// filteringChanged reports whether the decoded state kept fewer entries
// than the original datagram declared, i.e. whether inbound filtering (or
// an unknown-type drop) actually removed something. When nothing changed
// and a peer has no outbound filter, that peer can be sent the original
// bytes verbatim instead of paying for a re-encode (spec.md section 9's
// permissible pass-through optimization).
func (w *Worker) filteringChanged(datagram []byte) bool {
	if len(datagram) < wire.HeaderSize {
		return true
	}
	origQueries := int(be16(datagram, 4))
	origRR := int(be16(datagram, 6)) + int(be16(datagram, 8)) + int(be16(datagram, 10))

	keptQueries := w.state.QueryCount
	keptRR := w.state.RRCount[wire.Answer] + w.state.RRCount[wire.Authority] + w.state.RRCount[wire.Additional]

	return keptQueries != origQueries || keptRR != origRR
}

func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func (w *Worker) forwardVerbatim(pf *iface.PerFamily, datagram []byte) {
	for _, p := range pf.Peers {
		w.sendOne(p.Interface, datagram)
	}
}

func (w *Worker) sendToUnfiltered(pf *iface.PerFamily, out []byte) {
	for _, p := range pf.Peers {
		if p.Filter == nil {
			w.sendOne(p.Interface, out)
		}
	}
}

func (w *Worker) sendToFilter(pf *iface.PerFamily, f *filter.List, out []byte) {
	for _, p := range pf.Peers {
		if p.Filter != nil && filter.Equal(p.Filter, f) {
			w.sendOne(p.Interface, out)
		}
	}
}

// sendOne sends a single datagram to dst, never blocking the worker: the
// destination socket is non-blocking, so a slow peer's send failure is
// logged and dropped rather than stalling the receive loop (spec.md
// section 4.8).
func (w *Worker) sendOne(dst *iface.Interface, out []byte) {
	dpf := dst.PerFamily(w.Family)
	if !dpf.Enabled || dpf.Conn == nil {
		return
	}
	if err := dpf.Conn.WriteTo(out, dst.IfIndex); err != nil {
		logging.Log(w.Logger, "bridge: sendto %s/%s: %s", dst.Name, w.Family, err)
	}
}
