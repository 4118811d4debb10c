package model

import (
	"errors"
	"math"
	"net"
	"strconv"
	"time"
)

// LatencyUnknown marks a node that was never probed or failed its last probe.
const LatencyUnknown = time.Duration(math.MaxInt64)

// MaxNodeFailures is the failure count at which a node stops being selected.
const MaxNodeFailures = 3

// ProxyNode is one entry of the proxy agent's node list. Health fields are
// owned by the proxy pool and live only in memory.
type ProxyNode struct {
	Name     string
	Server   string
	Port     int
	Kind     string
	Password string
	Cipher   string
	UUID     string
	AlterID  int

	Latency  time.Duration
	Failures int
	TestedAt time.Time
}

func (n *ProxyNode) Address() string {
	return net.JoinHostPort(n.Server, strconv.Itoa(n.Port))
}

func (n *ProxyNode) Reachable() bool {
	return n.Latency != LatencyUnknown
}

func (n *ProxyNode) Healthy() bool {
	return n.Reachable() && n.Failures < MaxNodeFailures
}

// ErrNoHealthyNode is returned when no node survives filtering and a re-probe.
var ErrNoHealthyNode = errors.New("no healthy proxy node")
