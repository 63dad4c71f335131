// Package config handles HCL configuration parsing, defaults and validation.
//
// # Overview
//
// The agent reads one HCL (or JSON) file at startup. [LoadFile] applies
// [DefaultConfig] first so that every attribute left out of the file keeps
// its default, then fills in defaults for any blocks present. The resulting
// [Config] is treated as immutable and passed by pointer.
//
// # Configuration Blocks
//
//   - exporter: where results are sent (influxdb2, splunk or spooler)
//   - spool: local store for results that could not be sent
//   - cache: local copy of every result (csv, json or sqlite)
//   - syslog: remote syslog target for the agent log
//   - ping, dns, http, iperf3_tcp, iperf3_udp, dhcp, smb, speedtest: tests
//
// Example:
//
//	probe_mode = "wireless"
//	wlan_if    = "wlan0"
//	mgt_if     = "eth0"
//
//	exporter {
//	  type   = "influxdb2"
//	  host   = "influx.example.net"
//	  port   = 8086
//	  token  = "..."
//	  org    = "netops"
//	  bucket = "probes"
//	}
//
//	ping {
//	  enabled = true
//	  targets = ["8.8.8.8", "www.example.com"]
//	}
//
// [WriteDefault] renders a commented starting config.
package config
