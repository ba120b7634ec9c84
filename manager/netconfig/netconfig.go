// Package netconfig renders the configuration document consumed by the
// overlay network daemon on a device.
package netconfig

import (
	"net/netip"
	"path"
	"sort"

	"github.com/meshkit/meshkit/api"
	"gopkg.in/yaml.v3"
)

// File names inside the device's output directory.
const (
	ConfigFile = "config.yml"
	CAFile     = "ca.crt"
	CertFile   = "host.crt"
	KeyFile    = "host.key"
)

// Defaults for the sections operators can't change.
const (
	DefaultPKIDir     = "/etc/nebula"
	DefaultListenPort = 4242
	DefaultDNSHost    = "0.0.0.0"
	DefaultDNSPort    = 53
	DefaultTunDevice  = "nebula1"
	DefaultMTU        = 1300
)

// Input is everything the renderer needs. Peers are the other nodes of the
// node's network.
type Input struct {
	Node  *api.Node
	Peers []*api.Node
	// Blocklist holds the fingerprints of revoked, unexpired certificates of
	// the network.
	Blocklist []string
	// PKIDir is the directory the device keeps its certificates in.
	PKIDir string
}

// Config is the rendered document. Field order is the order of sections in
// the output.
type Config struct {
	PKI           PKI                 `yaml:"pki"`
	StaticHostMap map[string][]string `yaml:"static_host_map,omitempty"`
	Lighthouse    Lighthouse          `yaml:"lighthouse"`
	Relay         Relay               `yaml:"relay"`
	Listen        Listen              `yaml:"listen"`
	Punchy        Punchy              `yaml:"punchy"`
	Tun           Tun                 `yaml:"tun"`
	Logging       Logging             `yaml:"logging"`
	Firewall      Firewall            `yaml:"firewall"`
}

type PKI struct {
	CA        string   `yaml:"ca"`
	Cert      string   `yaml:"cert"`
	Key       string   `yaml:"key"`
	Blocklist []string `yaml:"blocklist,omitempty"`
}

type Lighthouse struct {
	AmLighthouse bool     `yaml:"am_lighthouse"`
	ServeDNS     bool     `yaml:"serve_dns,omitempty"`
	DNS          *DNS     `yaml:"dns,omitempty"`
	Interval     int      `yaml:"interval,omitempty"`
	Hosts        []string `yaml:"hosts"`
}

type DNS struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Relay struct {
	AmRelay   bool     `yaml:"am_relay"`
	Relays    []string `yaml:"relays,omitempty"`
	UseRelays bool     `yaml:"use_relays"`
}

type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Punchy struct {
	Punch   bool   `yaml:"punch"`
	Respond bool   `yaml:"respond"`
	Delay   string `yaml:"delay,omitempty"`
}

type Tun struct {
	Dev                string   `yaml:"dev"`
	DropLocalBroadcast bool     `yaml:"drop_local_broadcast"`
	DropMulticast      bool     `yaml:"drop_multicast"`
	TxQueue            int      `yaml:"tx_queue"`
	MTU                int      `yaml:"mtu"`
	Routes             []string `yaml:"routes"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Conntrack struct {
	TCPTimeout     string `yaml:"tcp_timeout"`
	UDPTimeout     string `yaml:"udp_timeout"`
	DefaultTimeout string `yaml:"default_timeout"`
	MaxConnections int    `yaml:"max_connections"`
}

type FirewallRule struct {
	Port  string `yaml:"port"`
	Proto string `yaml:"proto"`
	Host  string `yaml:"host"`
}

type Firewall struct {
	Conntrack Conntrack      `yaml:"conntrack"`
	Outbound  []FirewallRule `yaml:"outbound"`
	Inbound   []FirewallRule `yaml:"inbound"`
}

// Build assembles the config of in.Node.
func Build(in Input) *Config {
	node := in.Node
	pkiDir := in.PKIDir
	if pkiDir == "" {
		pkiDir = DefaultPKIDir
	}

	cfg := &Config{
		PKI: PKI{
			CA:        path.Join(pkiDir, CAFile),
			Cert:      path.Join(pkiDir, CertFile),
			Key:       path.Join(pkiDir, KeyFile),
			Blocklist: sortedCopy(in.Blocklist),
		},
		Lighthouse: Lighthouse{
			AmLighthouse: node.Spec.IsLighthouse,
			Hosts:        []string{},
		},
		Relay: Relay{
			AmRelay:   node.Spec.IsRelay,
			UseRelays: true,
		},
		Listen: Listen{Host: "0.0.0.0", Port: DefaultListenPort},
		Punchy: punchy(node.Spec.Punchy),
		Tun: Tun{
			Dev:     DefaultTunDevice,
			TxQueue: 500,
			MTU:     DefaultMTU,
			Routes:  []string{},
		},
		Logging: logging(node.Spec.Logging),
		Firewall: Firewall{
			Conntrack: Conntrack{
				TCPTimeout:     "12m",
				UDPTimeout:     "3m",
				DefaultTimeout: "10m",
				MaxConnections: 100000,
			},
			Outbound: []FirewallRule{{Port: "any", Proto: "any", Host: "any"}},
			Inbound:  []FirewallRule{{Port: "any", Proto: "any", Host: "any"}},
		},
	}

	peers := append([]*api.Node(nil), in.Peers...)
	sort.Slice(peers, func(i, j int) bool { return addressLess(peers[i].Address, peers[j].Address) })

	for _, p := range peers {
		if p.ID == node.ID || p.Address == "" {
			continue
		}
		if p.Spec.IsLighthouse && p.Spec.PublicEndpoint != "" {
			if cfg.StaticHostMap == nil {
				cfg.StaticHostMap = make(map[string][]string)
			}
			cfg.StaticHostMap[p.Address] = []string{p.Spec.PublicEndpoint}
			// lighthouses don't query other lighthouses
			if !node.Spec.IsLighthouse {
				cfg.Lighthouse.Hosts = append(cfg.Lighthouse.Hosts, p.Address)
			}
		}
		if p.Spec.IsRelay && !node.Spec.IsRelay {
			cfg.Relay.Relays = append(cfg.Relay.Relays, p.Address)
		}
	}

	if node.Spec.IsLighthouse {
		opts := node.Spec.Lighthouse
		if opts.ServeDNS {
			cfg.Lighthouse.ServeDNS = true
			cfg.Lighthouse.DNS = &DNS{Host: opts.DNSHost, Port: opts.DNSPort}
			if cfg.Lighthouse.DNS.Host == "" {
				cfg.Lighthouse.DNS.Host = DefaultDNSHost
			}
			if cfg.Lighthouse.DNS.Port == 0 {
				cfg.Lighthouse.DNS.Port = DefaultDNSPort
			}
		}
		cfg.Lighthouse.Interval = opts.Interval
	}
	return cfg
}

// Render builds and marshals the config of in.Node.
func Render(in Input) ([]byte, error) {
	return yaml.Marshal(Build(in))
}

// punchy enables punching and responding unless the operator configured
// anything.
func punchy(opts api.PunchyOptions) Punchy {
	if opts == (api.PunchyOptions{}) {
		return Punchy{Punch: true, Respond: true}
	}
	return Punchy{Punch: opts.Punch, Respond: opts.Respond, Delay: opts.Delay}
}

func logging(opts api.LoggingOptions) Logging {
	l := Logging{Level: opts.Level, Format: opts.Format}
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	return l
}

// addressLess orders addresses numerically. Unparsable ones sort last, by
// their text.
func addressLess(a, b string) bool {
	ia, errA := netip.ParseAddr(a)
	ib, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return ia.Less(ib)
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func sortedCopy(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
