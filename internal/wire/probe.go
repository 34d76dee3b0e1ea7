package wire

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds each card fetch during Probe.
const DefaultProbeTimeout = 500 * time.Millisecond

// Probe concurrently dials every candidate base URL and returns the agents
// that answered with a valid card, ordered by agent id. Candidates that do
// not answer within timeout are skipped; Probe itself never fails. When two
// candidates report the same agent id the first by URL wins.
func Probe(ctx context.Context, client *Client, candidates []string, timeout time.Duration, logger logging.Logger) []*RemoteAgent {
	if client == nil {
		client = NewClient()
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger = logging.Component(logger, "probe")

	var (
		mu    sync.Mutex
		found = make(map[string]*RemoteAgent)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, url := range candidates {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			ra, err := Dial(probeCtx, client, url)
			if err != nil {
				logger.Debug("no agent", "url", url, "error", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, ok := found[ra.ID()]; ok && prev.Endpoint() < ra.Endpoint() {
				return nil
			}
			found[ra.ID()] = ra
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*RemoteAgent, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	logger.Info("probe finished", "candidates", len(candidates), "agents", len(out))
	return out
}

// PortRange expands "host:first-last" into one base URL per port. A single
// port ("host:9100") yields one URL.
func PortRange(rng string) ([]string, error) {
	host, ports, ok := strings.Cut(rng, ":")
	if !ok || host == "" {
		return nil, fmt.Errorf("wire: port range %q: want host:first-last", rng)
	}
	firstStr, lastStr, isRange := strings.Cut(ports, "-")
	if !isRange {
		lastStr = firstStr
	}
	first, err := strconv.Atoi(firstStr)
	if err != nil {
		return nil, fmt.Errorf("wire: port range %q: %w", rng, err)
	}
	last, err := strconv.Atoi(lastStr)
	if err != nil {
		return nil, fmt.Errorf("wire: port range %q: %w", rng, err)
	}
	if first < 1 || last > 65535 || first > last {
		return nil, fmt.Errorf("wire: port range %q: ports must satisfy 1 <= first <= last <= 65535", rng)
	}

	urls := make([]string, 0, last-first+1)
	for port := first; port <= last; port++ {
		urls = append(urls, fmt.Sprintf("http://%s:%d", host, port))
	}
	return urls, nil
}
