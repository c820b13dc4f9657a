package ipc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

const nodePrefix = "libos-"

// NodeName returns the memberlist node name of the LibOS process pid.
func NodeName(pid int32) string {
	return nodePrefix + strconv.Itoa(int(pid))
}

// ParseNodeName extracts the pid from a node name.
func ParseNodeName(name string) (int32, bool) {
	if !strings.HasPrefix(name, nodePrefix) {
		return 0, false
	}
	pid, err := strconv.ParseInt(strings.TrimPrefix(name, nodePrefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(pid), true
}

// GossipConfig configures a gossip node.
type GossipConfig struct {
	// PID is the LibOS process this node speaks for.
	PID int32
	// BindAddr is the address to bind for gossip communication.
	BindAddr string
	// BindPort is the port to bind. Zero picks a free port.
	BindPort int
	// Seeds are existing members to join.
	Seeds []string
	// SecretKey enables memberlist encryption. It must be 16, 24 or 32
	// bytes long, or empty.
	SecretKey []byte
	// LeaveTimeout bounds the wait for the leave broadcast in Shutdown.
	// Zero means DefaultLeaveTimeout.
	LeaveTimeout time.Duration
}

// DefaultLeaveTimeout is the leave wait used when none is configured.
const DefaultLeaveTimeout = 500 * time.Millisecond

// Gossip sends and receives child-exit messages between host processes
// over a memberlist cluster. Each LibOS process is one member.
type Gossip struct {
	pid      int32
	leave    time.Duration
	list     *memberlist.Memberlist
	handler  Handler
	metrics  *metric.Registry
	logger   logger.Logger
	inflight sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// NewGossip starts a gossip node and joins the seeds, if any. Inbound
// messages are passed to handler.
func NewGossip(cfg GossipConfig, handler Handler, m *metric.Registry, log logger.Logger) (*Gossip, error) {
	if m == nil {
		m = metric.NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	g := &Gossip{
		pid:     cfg.PID,
		leave:   cfg.LeaveTimeout,
		handler: handler,
		metrics: m,
		logger:  log.With("component", "ipc", "transport", "gossip", "pid", cfg.PID),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = NodeName(cfg.PID)
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.SecretKey = cfg.SecretKey
	mlConfig.Delegate = &messageDelegate{gossip: g}
	mlConfig.Logger = newMemberlistLogger(g.logger)

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	g.list = list

	if len(cfg.Seeds) > 0 {
		n, err := list.Join(cfg.Seeds)
		if err != nil {
			list.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		g.logger.Info("joined ipc cluster", "seeds", cfg.Seeds, "joined_count", n)
	} else {
		g.logger.Info("started ipc node (bootstrap mode)", "addr", g.Addr())
	}
	return g, nil
}

// Addr returns the host:port other nodes use to join this one.
func (g *Gossip) Addr() string {
	return g.list.LocalNode().Address()
}

// Peers returns the pids of the other members.
func (g *Gossip) Peers() []int32 {
	var pids []int32
	for _, n := range g.list.Members() {
		if pid, ok := ParseNodeName(n.Name); ok && pid != g.pid {
			pids = append(pids, pid)
		}
	}
	return pids
}

func (g *Gossip) member(pid int32) *memberlist.Node {
	name := NodeName(pid)
	for _, n := range g.list.Members() {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// SendChildExit implements the exit path's RemoteNotifier. The send runs in
// the background; only an unknown destination is reported to the caller.
func (g *Gossip) SendChildExit(ctx context.Context, dest, childTID int32, exitCode, termSignal int) error {
	node := g.member(dest)
	if node == nil {
		g.metrics.IPCDropped.Inc()
		g.logger.Debug("no member for destination", "dest", dest)
		return domain.ErrUnknownPeer.WithDetails(fmt.Sprintf("pid %d", dest))
	}

	payload := ChildExit{Dest: dest, ChildTID: childTID, ExitCode: exitCode, TermSignal: termSignal}.Marshal()
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		if err := g.list.SendReliable(node, payload); err != nil {
			g.metrics.IPCDropped.Inc()
			g.logger.Warn("child exit send failed", "dest", dest, "child_tid", childTID, "error", err)
		}
	}()
	return nil
}

// Shutdown leaves the cluster and stops the node. The leave wait is
// bounded by LeaveTimeout; an unacknowledged leave is logged, not returned.
// Later calls return the result of the first.
func (g *Gossip) Shutdown(ctx context.Context) error {
	g.stopOnce.Do(func() {
		g.inflight.Wait()
		if err := g.list.Leave(g.leaveTimeout(ctx)); err != nil {
			g.logger.Warn("leave ipc cluster failed", "error", err)
		}
		if err := g.list.Shutdown(); err != nil {
			g.stopErr = fmt.Errorf("shutdown memberlist: %w", err)
		}
	})
	return g.stopErr
}

// leaveTimeout is the configured leave wait, cut short by the deadline
// of ctx. A peer that is leaving at the same time never acknowledges the
// broadcast, so the wait must not take the whole shutdown budget.
func (g *Gossip) leaveTimeout(ctx context.Context) time.Duration {
	d := g.leave
	if d <= 0 {
		d = DefaultLeaveTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d <= 0 {
		// memberlist waits forever on a zero timeout.
		d = time.Millisecond
	}
	return d
}

func (g *Gossip) receive(b []byte) {
	msg, err := Decode(b)
	if err != nil {
		g.metrics.IPCDropped.Inc()
		g.logger.Warn("dropping inbound message", "error", err)
		return
	}
	if msg.Dest != g.pid {
		g.metrics.IPCDropped.Inc()
		g.logger.Debug("message for another process", "dest", msg.Dest)
		return
	}
	if g.handler != nil {
		g.handler(context.Background(), msg)
	}
}

// messageDelegate implements memberlist.Delegate for user messages.
type messageDelegate struct {
	gossip *Gossip
}

// NodeMeta returns no metadata; the node name carries the pid.
func (d *messageDelegate) NodeMeta(limit int) []byte { return nil }

// NotifyMsg is called for every user message received.
func (d *messageDelegate) NotifyMsg(b []byte) {
	d.gossip.receive(b)
}

// GetBroadcasts is not used.
func (d *messageDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState is not used.
func (d *messageDelegate) LocalState(join bool) []byte { return nil }

// MergeRemoteState is not used.
func (d *messageDelegate) MergeRemoteState(buf []byte, join bool) {}
