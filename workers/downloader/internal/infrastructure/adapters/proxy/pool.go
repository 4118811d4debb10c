package proxy

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/domain/model"
)

var ErrNoHealthyNode = model.ErrNoHealthyNode

var supportedKinds = map[string]bool{
	"ss":     true,
	"vmess":  true,
	"http":   true,
	"https":  true,
	"socks5": true,
	"trojan": true,
}

type clashConfig struct {
	MixedPort int          `yaml:"mixed-port"`
	Port      int          `yaml:"port"`
	Proxies   []clashProxy `yaml:"proxies"`
}

type clashProxy struct {
	Name     string `yaml:"name"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Type     string `yaml:"type"`
	Password string `yaml:"password"`
	Cipher   string `yaml:"cipher"`
	UUID     string `yaml:"uuid"`
	AlterID  int    `yaml:"alterId"`
}

// ProbeFunc measures how long a TCP connect to address takes.
type ProbeFunc func(ctx context.Context, address string, timeout time.Duration) (time.Duration, error)

// Pool is a health registry over the nodes of a Clash configuration. It
// never routes traffic itself: requests go through the forwarding agent at
// Endpoint, and the selected node is a preference the agent is told about
// out of band.
type Pool struct {
	mu           sync.Mutex
	configPath   string
	endpoint     string
	nodes        []*model.ProxyNode
	current      *model.ProxyNode
	probe        ProbeFunc
	probeWorkers int
	probeTimeout time.Duration
	pick         func(n int) int
	logger       ports.Logger
	metrics      ports.Metrics
}

func NewPool(cfg config.ProxyConfig, logger ports.Logger, metrics ports.Metrics) *Pool {
	return &Pool{
		configPath:   cfg.ClashConfigPath,
		endpoint:     cfg.ForwardURL,
		probe:        dialProbe,
		probeWorkers: cfg.ProbeWorkers,
		probeTimeout: cfg.ProbeTimeout,
		pick:         rand.Intn,
		logger:       logger,
		metrics:      metrics,
	}
}

// WithProbe replaces the TCP connect probe.
func (p *Pool) WithProbe(probe ProbeFunc) *Pool {
	p.probe = probe
	return p
}

// Load reads the node list from the configured Clash file.
func (p *Pool) Load() error {
	data, err := os.ReadFile(p.configPath)
	if err != nil {
		return fmt.Errorf("failed to read proxy config %s: %w", p.configPath, err)
	}
	return p.Parse(data)
}

// Parse loads nodes from Clash YAML. Unsupported kinds and incomplete
// entries are skipped with a warning.
func (p *Pool) Parse(data []byte) error {
	var cfg clashConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse proxy config: %w", err)
	}

	nodes := make([]*model.ProxyNode, 0, len(cfg.Proxies))
	for _, entry := range cfg.Proxies {
		kind := strings.ToLower(strings.TrimSpace(entry.Type))
		if !supportedKinds[kind] {
			p.logger.Warn("skipping proxy node with unsupported type", "node", entry.Name, "type", entry.Type)
			p.metrics.IncrementCounter("proxy.node.skipped", map[string]string{"reason": "unsupported_type"})
			continue
		}
		if entry.Name == "" || entry.Server == "" || entry.Port <= 0 {
			p.logger.Warn("skipping incomplete proxy node", "node", entry.Name, "server", entry.Server)
			p.metrics.IncrementCounter("proxy.node.skipped", map[string]string{"reason": "incomplete"})
			continue
		}
		nodes = append(nodes, &model.ProxyNode{
			Name:     entry.Name,
			Server:   entry.Server,
			Port:     entry.Port,
			Kind:     kind,
			Password: entry.Password,
			Cipher:   entry.Cipher,
			UUID:     entry.UUID,
			AlterID:  entry.AlterID,
			Latency:  model.LatencyUnknown,
		})
	}

	p.mu.Lock()
	p.nodes = nodes
	p.current = nil
	switch {
	case cfg.MixedPort > 0:
		p.endpoint = localEndpoint(cfg.MixedPort)
	case cfg.Port > 0:
		p.endpoint = localEndpoint(cfg.Port)
	}
	endpoint := p.endpoint
	p.mu.Unlock()

	p.logger.Info("loaded proxy nodes", "nodes", len(nodes), "endpoint", endpoint)
	p.metrics.RecordGauge("proxy.nodes", float64(len(nodes)), nil)
	return nil
}

// TestAll probes every node with at most maxWorkers concurrent connects and
// sorts the nodes by latency. Failed probes mark the node unreachable and
// count as a failure.
func (p *Pool) TestAll(ctx context.Context, maxWorkers int, timeout time.Duration) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	p.mu.Lock()
	nodes := append([]*model.ProxyNode(nil), p.nodes...)
	p.mu.Unlock()

	p.logger.Info("probing proxy nodes", "nodes", len(nodes), "workers", maxWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for _, node := range nodes {
		node := node // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			latency, err := p.probe(gctx, node.Address(), timeout)
			p.record(node, latency, err)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	sort.SliceStable(p.nodes, func(i, j int) bool {
		return p.nodes[i].Latency < p.nodes[j].Latency
	})
	reachable := 0
	for _, n := range p.nodes {
		if n.Reachable() {
			reachable++
		}
	}
	top := make([]string, 0, 10)
	for _, n := range p.nodes {
		if len(top) == cap(top) || !n.Reachable() {
			break
		}
		top = append(top, fmt.Sprintf("%s(%dms)", n.Name, n.Latency.Milliseconds()))
	}
	p.mu.Unlock()

	p.metrics.RecordGauge("proxy.nodes.reachable", float64(reachable), nil)
	p.logger.Info("proxy probe finished",
		"reachable", reachable,
		"total", len(nodes),
		"fastest", strings.Join(top, ", "))
}

func (p *Pool) record(node *model.ProxyNode, latency time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	node.TestedAt = time.Now()
	if err != nil {
		node.Latency = model.LatencyUnknown
		node.Failures++
		p.logger.Debug("proxy probe failed", "node", node.Name, "error", err)
		p.metrics.IncrementCounter("proxy.probe.failed", nil)
		return
	}
	node.Latency = latency
	p.metrics.RecordHistogram("proxy.probe.latency_ms", float64(latency.Milliseconds()), nil)
}

// SelectFastest returns a snapshot of the lowest-latency healthy node whose
// name contains region (case-insensitive). An unmatched region falls back to
// every node. When nothing qualifies, the nodes are probed again once.
func (p *Pool) SelectFastest(ctx context.Context, region string) (*model.ProxyNode, error) {
	if node := p.selectFastest(region); node != nil {
		return node, nil
	}

	p.logger.Warn("no healthy proxy node, probing again", "region", region)
	p.TestAll(ctx, p.probeWorkers, p.probeTimeout)

	if node := p.selectFastest(region); node != nil {
		return node, nil
	}
	return nil, ErrNoHealthyNode
}

func (p *Pool) selectFastest(region string) *model.ProxyNode {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *model.ProxyNode
	for _, n := range p.byRegion(region) {
		if n.Healthy() && (best == nil || n.Latency < best.Latency) {
			best = n
		}
	}
	if best == nil {
		return nil
	}
	p.current = best
	p.logger.Info("selected fastest proxy node", "node", best.Name, "latency_ms", best.Latency.Milliseconds())
	return snapshot(best)
}

func (p *Pool) byRegion(region string) []*model.ProxyNode {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return p.nodes
	}
	var matched []*model.ProxyNode
	for _, n := range p.nodes {
		if strings.Contains(strings.ToLower(n.Name), region) {
			matched = append(matched, n)
		}
	}
	if len(matched) == 0 {
		p.logger.Warn("no proxy node matches region, using all nodes", "region", region)
		return p.nodes
	}
	return matched
}

// SelectRandom samples uniformly among healthy nodes under maxLatency and
// falls back to SelectFastest when none qualify. The node is a snapshot.
func (p *Pool) SelectRandom(ctx context.Context, maxLatency time.Duration) (*model.ProxyNode, error) {
	p.mu.Lock()
	var candidates []*model.ProxyNode
	for _, n := range p.nodes {
		if n.Healthy() && n.Latency < maxLatency {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) > 0 {
		node := candidates[p.pick(len(candidates))]
		p.current = node
		p.logger.Info("selected random proxy node", "node", node.Name, "latency_ms", node.Latency.Milliseconds())
		selected := snapshot(node)
		p.mu.Unlock()
		return selected, nil
	}
	p.mu.Unlock()

	p.logger.Warn("no proxy node under latency threshold, using fastest", "max_latency", maxLatency)
	return p.SelectFastest(ctx, "")
}

// MarkFailed counts a failure against the pool's node of the same name.
// The node stays in the pool.
func (p *Pool) MarkFailed(node *model.ProxyNode) {
	if node == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, n := range p.nodes {
		if n.Name != node.Name {
			continue
		}
		n.Failures++
		p.logger.Warn("proxy node marked failed", "node", n.Name, "failures", n.Failures)
		p.metrics.IncrementCounter("proxy.node.failed", nil)
		return
	}
	p.logger.Warn("unknown proxy node marked failed", "node", node.Name)
}

// Current returns a snapshot of the selected node, nil before any selection.
func (p *Pool) Current() *model.ProxyNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return snapshot(p.current)
}

// snapshot copies a node so callers never read fields the probes write.
// Callers must hold p.mu.
func snapshot(n *model.ProxyNode) *model.ProxyNode {
	c := *n
	return &c
}

// Nodes returns a snapshot of every node in latency order.
func (p *Pool) Nodes() []model.ProxyNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ProxyNode, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = *n
	}
	return out
}

// Endpoint is the forwarding agent's local proxy URL.
func (p *Pool) Endpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint
}

func localEndpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func dialProbe(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, err
	}
	latency := time.Since(start)
	conn.Close()
	return latency, nil
}
