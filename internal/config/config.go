package config

import (
	"path/filepath"
	"time"

	"grimm.is/pathprobe/internal/brand"
)

// Probe modes.
const (
	ModeWireless = "wireless"
	ModeEthernet = "ethernet"
)

// Exporter types.
const (
	ExporterInflux  = "influxdb2"
	ExporterSplunk  = "splunk"
	ExporterSpooler = "spooler"
)

// Cache formats.
const (
	CacheCSV    = "csv"
	CacheJSON   = "json"
	CacheSQLite = "sqlite"
)

// DHCP test modes.
const (
	DHCPPassive = "passive"
	DHCPActive  = "active"
)

// Config is the top-level structure for the probe configuration.
type Config struct {
	ProbeMode string `hcl:"probe_mode,optional" json:"probe_mode"`
	WLANIf    string `hcl:"wlan_if,optional" json:"wlan_if"`
	EthIf     string `hcl:"eth_if,optional" json:"eth_if"`
	MgtIf     string `hcl:"mgt_if,optional" json:"mgt_if"`

	// Host used for the general Internet reachability check.
	ConnectivityLookup string `hcl:"connectivity_lookup,optional" json:"connectivity_lookup"`

	IPv4Enabled   bool `hcl:"ipv4_enabled,optional" json:"ipv4_enabled"`
	IPv6Enabled   bool `hcl:"ipv6_enabled,optional" json:"ipv6_enabled"`
	IPv6Preferred bool `hcl:"ipv6_preferred,optional" json:"ipv6_preferred"`

	LeaseDir    string `hcl:"lease_dir,optional" json:"lease_dir"`
	BounceDelay int    `hcl:"bounce_delay,optional" json:"bounce_delay"` // seconds
	IfDownCmd   string `hcl:"if_down_cmd,optional" json:"if_down_cmd"`
	IfUpCmd     string `hcl:"if_up_cmd,optional" json:"if_up_cmd"`

	TestIssueThreshold int `hcl:"test_issue_threshold,optional" json:"test_issue_threshold"`
	TestTimeout        int `hcl:"test_timeout,optional" json:"test_timeout"` // seconds

	LockFile       string `hcl:"lock_file,optional" json:"lock_file"`
	LockStaleAfter int    `hcl:"lock_stale_after,optional" json:"lock_stale_after"` // seconds

	WatchdogFile      string `hcl:"watchdog_file,optional" json:"watchdog_file"`
	WatchdogThreshold int    `hcl:"watchdog_threshold,optional" json:"watchdog_threshold"`

	LogFile         string `hcl:"log_file,optional" json:"log_file,omitempty"`
	Debug           bool   `hcl:"debug,optional" json:"debug"`
	MetricsTextfile string `hcl:"metrics_textfile,optional" json:"metrics_textfile,omitempty"`
	// Carried into results only; scheduling is external.
	PollIntervalHint int `hcl:"poll_interval_hint,optional" json:"poll_interval_hint,omitempty"`

	Exporter *ExporterConfig `hcl:"exporter,block" json:"exporter,omitempty"`
	Spool    *SpoolConfig    `hcl:"spool,block" json:"spool,omitempty"`
	Cache    *CacheConfig    `hcl:"cache,block" json:"cache,omitempty"`
	Syslog   *SyslogConfig   `hcl:"syslog,block" json:"syslog,omitempty"`

	Ping      *PingConfig      `hcl:"ping,block" json:"ping,omitempty"`
	DNS       *DNSConfig       `hcl:"dns,block" json:"dns,omitempty"`
	HTTP      *HTTPConfig      `hcl:"http,block" json:"http,omitempty"`
	IperfTCP  *IperfConfig     `hcl:"iperf3_tcp,block" json:"iperf3_tcp,omitempty"`
	IperfUDP  *IperfConfig     `hcl:"iperf3_udp,block" json:"iperf3_udp,omitempty"`
	DHCP      *DHCPConfig      `hcl:"dhcp,block" json:"dhcp,omitempty"`
	SMB       *SMBConfig       `hcl:"smb,block" json:"smb,omitempty"`
	Speedtest *SpeedtestConfig `hcl:"speedtest,block" json:"speedtest,omitempty"`
}

// ExporterConfig describes the results backend.
type ExporterConfig struct {
	Type     string `hcl:"type" json:"type"`
	Host     string `hcl:"host,optional" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	Token    string `hcl:"token,optional" json:"token,omitempty"`
	Org      string `hcl:"org,optional" json:"org,omitempty"`
	Bucket   string `hcl:"bucket,optional" json:"bucket,omitempty"`
	HTTPS    bool   `hcl:"https,optional" json:"https"`
	Insecure bool   `hcl:"insecure_skip_verify,optional" json:"insecure_skip_verify,omitempty"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `hcl:"timeout,optional" json:"timeout,omitempty"`
}

// SpoolConfig controls the local result spool.
type SpoolConfig struct {
	Enabled bool   `hcl:"enabled,optional" json:"enabled"`
	Dir     string `hcl:"dir,optional" json:"dir"`
	MaxAge  int    `hcl:"max_age,optional" json:"max_age"` // minutes
}

// CacheConfig controls the local copy of every result.
type CacheConfig struct {
	Enabled       bool   `hcl:"enabled,optional" json:"enabled"`
	Root          string `hcl:"root,optional" json:"root"`
	Format        string `hcl:"format,optional" json:"format"`
	RetentionDays int    `hcl:"retention_days,optional" json:"retention_days"`
}

// SyslogConfig sends the agent log to a remote syslog server.
type SyslogConfig struct {
	Host     string `hcl:"host" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	Protocol string `hcl:"protocol,optional" json:"protocol"`
	Tag      string `hcl:"tag,optional" json:"tag"`
	Facility string `hcl:"facility,optional" json:"facility"`
}

// PingConfig configures the ICMP test.
type PingConfig struct {
	Enabled    bool     `hcl:"enabled,optional" json:"enabled"`
	Targets    []string `hcl:"targets,optional" json:"targets"`
	Count      int      `hcl:"count,optional" json:"count"`
	IntervalMS int      `hcl:"interval_ms,optional" json:"interval_ms"`
	DataFile   string   `hcl:"data_file,optional" json:"data_file"`
}

// DNSConfig configures the DNS lookup test.
type DNSConfig struct {
	Enabled  bool     `hcl:"enabled,optional" json:"enabled"`
	Targets  []string `hcl:"targets,optional" json:"targets"`
	Server   string   `hcl:"server,optional" json:"server,omitempty"`
	DataFile string   `hcl:"data_file,optional" json:"data_file"`
}

// HTTPConfig configures the HTTP GET test.
type HTTPConfig struct {
	Enabled  bool     `hcl:"enabled,optional" json:"enabled"`
	Targets  []string `hcl:"targets,optional" json:"targets"`
	DataFile string   `hcl:"data_file,optional" json:"data_file"`
}

// IperfConfig configures an iperf3 TCP or UDP test.
type IperfConfig struct {
	Enabled   bool   `hcl:"enabled,optional" json:"enabled"`
	Server    string `hcl:"server,optional" json:"server"`
	Port      int    `hcl:"port,optional" json:"port"`
	Duration  int    `hcl:"duration,optional" json:"duration"` // seconds
	Bandwidth string `hcl:"bandwidth,optional" json:"bandwidth,omitempty"`
	DataFile  string `hcl:"data_file,optional" json:"data_file"`
}

// DHCPConfig configures the DHCP renewal test.
type DHCPConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Mode     string `hcl:"mode,optional" json:"mode"`
	DataFile string `hcl:"data_file,optional" json:"data_file"`
}

// SMBConfig configures the SMB file copy test.
type SMBConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host,optional" json:"host"`
	Share    string `hcl:"share,optional" json:"share"`
	Username string `hcl:"username,optional" json:"username"`
	Password string `hcl:"password,optional" json:"password,omitempty"`
	File     string `hcl:"file,optional" json:"file"`
	DataFile string `hcl:"data_file,optional" json:"data_file"`
}

// SpeedtestConfig configures the Ookla speedtest.
type SpeedtestConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	ServerID string `hcl:"server_id,optional" json:"server_id,omitempty"`
	DataFile string `hcl:"data_file,optional" json:"data_file"`
}

// DefaultConfig returns a config with every attribute at its default.
// Optional blocks are left nil.
func DefaultConfig() *Config {
	return &Config{
		ProbeMode:          ModeWireless,
		WLANIf:             "wlan0",
		EthIf:              "eth0",
		MgtIf:              "wlan0",
		ConnectivityLookup: "google.com",
		IPv4Enabled:        true,
		LeaseDir:           "/var/lib/dhcp",
		BounceDelay:        10,
		IfDownCmd:          "/sbin/ifdown",
		IfUpCmd:            "/sbin/ifup",
		TestIssueThreshold: 2,
		TestTimeout:        60,
		LockFile:           "/tmp/" + brand.LowerName + ".lock",
		LockStaleAfter:     1800,
		WatchdogFile:       "/tmp/" + brand.LowerName + ".watchdog",
		WatchdogThreshold:  3,
	}
}

// applyBlockDefaults fills unset fields of the blocks present in c.
func (c *Config) applyBlockDefaults() {
	if e := c.Exporter; e != nil {
		if e.Port == 0 {
			switch e.Type {
			case ExporterInflux:
				e.Port = 8086
			case ExporterSplunk:
				e.Port = 8088
			}
		}
		if e.Timeout == 0 {
			e.Timeout = 10
		}
	}
	if s := c.Spool; s != nil {
		if s.Dir == "" {
			s.Dir = brand.DefaultSpoolDir
		}
		if s.MaxAge == 0 {
			s.MaxAge = 30
		}
	}
	if k := c.Cache; k != nil {
		if k.Root == "" {
			k.Root = brand.DefaultCacheDir
		}
		if k.Format == "" {
			k.Format = CacheCSV
		}
		if k.RetentionDays == 0 {
			k.RetentionDays = 3
		}
	}
	if s := c.Syslog; s != nil {
		if s.Port == 0 {
			s.Port = 514
		}
		if s.Protocol == "" {
			s.Protocol = "udp"
		}
		if s.Tag == "" {
			s.Tag = brand.LowerName
		}
		if s.Facility == "" {
			s.Facility = "daemon"
		}
	}
	if p := c.Ping; p != nil {
		if p.Count == 0 {
			p.Count = 10
		}
		if p.IntervalMS == 0 {
			p.IntervalMS = 200
		}
		setDataFile(&p.DataFile, "ping")
	}
	if d := c.DNS; d != nil {
		setDataFile(&d.DataFile, "dns")
	}
	if h := c.HTTP; h != nil {
		setDataFile(&h.DataFile, "http")
	}
	for _, i := range []struct {
		cfg  *IperfConfig
		name string
	}{{c.IperfTCP, "iperf3-tcp"}, {c.IperfUDP, "iperf3-udp"}} {
		if i.cfg == nil {
			continue
		}
		if i.cfg.Port == 0 {
			i.cfg.Port = 5201
		}
		if i.cfg.Duration == 0 {
			i.cfg.Duration = 10
		}
		setDataFile(&i.cfg.DataFile, i.name)
	}
	if c.IperfUDP != nil && c.IperfUDP.Bandwidth == "" {
		c.IperfUDP.Bandwidth = "20M"
	}
	if d := c.DHCP; d != nil {
		if d.Mode == "" {
			d.Mode = DHCPPassive
		}
		setDataFile(&d.DataFile, "dhcp")
	}
	if s := c.SMB; s != nil {
		setDataFile(&s.DataFile, "smb")
	}
	if s := c.Speedtest; s != nil {
		setDataFile(&s.DataFile, "speedtest")
	}
}

func setDataFile(field *string, kind string) {
	if *field == "" {
		*field = brand.DataSource(kind)
	}
}

// LeasePattern returns the dhclient lease path pattern for LeaseDir.
func (c *Config) LeasePattern() string {
	return filepath.Join(c.LeaseDir, "dhclient.{iface}.leases")
}

// BounceDelayDuration returns BounceDelay as a duration.
func (c *Config) BounceDelayDuration() time.Duration {
	return time.Duration(c.BounceDelay) * time.Second
}

// TestTimeoutDuration returns TestTimeout as a duration.
func (c *Config) TestTimeoutDuration() time.Duration {
	return time.Duration(c.TestTimeout) * time.Second
}

// LockStaleDuration returns LockStaleAfter as a duration.
func (c *Config) LockStaleDuration() time.Duration {
	return time.Duration(c.LockStaleAfter) * time.Second
}

// SpoolEnabled reports whether results may be spooled locally.
func (c *Config) SpoolEnabled() bool {
	return (c.Spool != nil && c.Spool.Enabled) || (c.Exporter != nil && c.Exporter.Type == ExporterSpooler)
}
