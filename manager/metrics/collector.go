// Package metrics exports node status and store activity to Prometheus.
package metrics

import (
	"context"
	"sync"

	"code.cloudfoundry.org/clock"
	metrics "github.com/docker/go-metrics"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/prometheus/client_golang/prometheus"
)

var storeEvents metrics.LabeledCounter

func init() {
	ns := metrics.NewNamespace("meshkit", "manager", nil)
	storeEvents = ns.NewLabeledCounter("store_events", "Store changes by object kind and action.", "kind", "action")
	metrics.Register(ns)
}

var (
	nodesDesc = prometheus.NewDesc(
		"meshkit_manager_nodes",
		"Number of nodes by network and derived status.",
		[]string{"network", "status"}, nil,
	)
	certificatesDesc = prometheus.NewDesc(
		"meshkit_manager_certificates",
		"Number of certificates by network and state.",
		[]string{"network", "state"}, nil,
	)
)

// Collector derives node status at scrape time. It also counts store events
// while Run is active.
type Collector struct {
	store *store.MemoryStore
	clock clock.Clock

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewCollector returns a Collector for s.
func NewCollector(s *store.MemoryStore, clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Collector{
		store:    s,
		clock:    clk,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nodesDesc
	ch <- certificatesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var (
		networks []*api.Network
		nodes    []*api.Node
		certs    []*api.Certificate
	)
	err := c.store.View(func(tx store.ReadTx) error {
		var err error
		if networks, err = store.FindNetworks(tx, store.All); err != nil {
			return err
		}
		if nodes, err = store.FindNodes(tx, store.All); err != nil {
			return err
		}
		certs, err = store.FindCertificates(tx, store.All)
		return err
	})
	if err != nil {
		log.L.WithError(err).Error("failed to collect node metrics")
		return
	}

	names := make(map[string]string, len(networks))
	for _, n := range networks {
		names[n.ID] = n.Name
	}

	now := c.clock.Now()
	statuses := make(map[string]map[api.NodeStatus]int, len(networks))
	for _, n := range networks {
		statuses[n.ID] = make(map[api.NodeStatus]int)
	}
	for _, n := range nodes {
		if statuses[n.NetworkID] == nil {
			continue
		}
		statuses[n.NetworkID][api.DeriveStatus(n, now)]++
	}
	for networkID, counts := range statuses {
		for _, status := range api.AllNodeStatuses {
			ch <- prometheus.MustNewConstMetric(nodesDesc, prometheus.GaugeValue,
				float64(counts[status]), names[networkID], status.String())
		}
	}

	type certKey struct{ network, state string }
	certCounts := make(map[certKey]int)
	for _, n := range networks {
		for _, state := range []string{"active", "revoked", "expired"} {
			certCounts[certKey{n.Name, state}] = 0
		}
	}
	for _, cert := range certs {
		name, ok := names[cert.NetworkID]
		if !ok {
			continue
		}
		state := "active"
		switch {
		case cert.Revoked():
			state = "revoked"
		case !cert.NotAfter.After(now):
			state = "expired"
		}
		certCounts[certKey{name, state}]++
	}
	for k, v := range certCounts {
		ch <- prometheus.MustNewConstMetric(certificatesDesc, prometheus.GaugeValue, float64(v), k.network, k.state)
	}
}

// Run counts store events until Stop is called or ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	defer close(c.doneChan)

	watcher, cancel, err := c.store.ViewAndWatch(func(store.ReadTx) error { return nil })
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case event := <-watcher:
			switch v := event.(type) {
			case store.EventCreate:
				storeEvents.WithValues(v.Object.Kind(), "create").Inc(1)
			case store.EventUpdate:
				storeEvents.WithValues(v.Object.Kind(), "update").Inc(1)
			case store.EventDelete:
				storeEvents.WithValues(v.Object.Kind(), "delete").Inc(1)
			}
		case <-c.stopChan:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops Run and waits for it to return. It must only be called after
// Run was started.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.doneChan
}
