package config

import (
	"fmt"
	"strings"

	"grimm.is/pathprobe/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the config for values the agent cannot run with. It
// returns ValidationErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.ProbeMode {
	case ModeWireless:
		if c.WLANIf == "" {
			add("wlan_if", "required in wireless mode")
		}
	case ModeEthernet:
		if c.EthIf == "" {
			add("eth_if", "required in ethernet mode")
		}
	default:
		add("probe_mode", "unknown probe mode %q (want %q or %q)", c.ProbeMode, ModeWireless, ModeEthernet)
	}
	if c.MgtIf == "" {
		add("mgt_if", "must not be empty")
	}
	if !c.IPv4Enabled && !c.IPv6Enabled {
		add("ipv4_enabled", "at least one address family must be enabled")
	}
	if c.IPv6Preferred && !c.IPv6Enabled {
		add("ipv6_preferred", "requires ipv6_enabled")
	}
	if c.ConnectivityLookup == "" {
		add("connectivity_lookup", "must not be empty")
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"test_issue_threshold", c.TestIssueThreshold},
		{"watchdog_threshold", c.WatchdogThreshold},
		{"test_timeout", c.TestTimeout},
		{"lock_stale_after", c.LockStaleAfter},
	} {
		if f.v <= 0 {
			add(f.name, "must be positive, got %d", f.v)
		}
	}
	if c.BounceDelay < 0 {
		add("bounce_delay", "must not be negative")
	}
	if c.LockFile == "" {
		add("lock_file", "must not be empty")
	}
	if c.WatchdogFile == "" {
		add("watchdog_file", "must not be empty")
	}

	if e := c.Exporter; e != nil {
		switch e.Type {
		case ExporterInflux:
			if e.Bucket == "" || e.Org == "" {
				add("exporter.bucket", "influxdb2 exporter needs org and bucket")
			}
		case ExporterSplunk:
			if e.Token == "" {
				add("exporter.token", "splunk exporter needs a HEC token")
			}
		case ExporterSpooler:
		default:
			add("exporter.type", "unknown exporter type %q", e.Type)
		}
		if e.Type != ExporterSpooler && e.Host == "" {
			add("exporter.host", "must not be empty")
		}
		if e.Port < 0 || e.Port > 65535 {
			add("exporter.port", "out of range: %d", e.Port)
		}
	}

	if k := c.Cache; k != nil {
		switch k.Format {
		case CacheCSV, CacheJSON, CacheSQLite:
		default:
			add("cache.format", "unknown cache format %q", k.Format)
		}
		if k.RetentionDays <= 0 {
			add("cache.retention_days", "must be positive")
		}
	}

	if s := c.Syslog; s != nil {
		if s.Host == "" {
			add("syslog.host", "must not be empty")
		}
		if s.Protocol != "" && s.Protocol != "udp" && s.Protocol != "tcp" {
			add("syslog.protocol", "unknown protocol %q (want udp or tcp)", s.Protocol)
		}
		if _, err := logging.ParseFacility(s.Facility); err != nil {
			add("syslog.facility", "%v", err)
		}
	}

	if s := c.Spool; s != nil && s.MaxAge <= 0 {
		add("spool.max_age", "must be positive")
	}

	if d := c.DHCP; d != nil && d.Mode != DHCPPassive && d.Mode != DHCPActive {
		add("dhcp.mode", "unknown mode %q", d.Mode)
	}
	if i := c.IperfTCP; i != nil && i.Enabled && i.Server == "" {
		add("iperf3_tcp.server", "required when enabled")
	}
	if i := c.IperfUDP; i != nil && i.Enabled && i.Server == "" {
		add("iperf3_udp.server", "required when enabled")
	}
	if s := c.SMB; s != nil && s.Enabled && (s.Host == "" || s.Share == "") {
		add("smb.host", "host and share are required when enabled")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
