package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/pathprobe/internal/brand"
)

// RenderDefault returns the default config as commented HCL.
func RenderDefault() []byte {
	cfg := DefaultConfig()
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	comment(body, fmt.Sprintf("%s configuration. Generated by %s init-config.", brand.Name, brand.BinaryName))
	body.AppendNewline()

	comment(body, "Interface carrying test traffic: wireless uses wlan_if, ethernet uses eth_if.")
	body.SetAttributeValue("probe_mode", cty.StringVal(cfg.ProbeMode))
	body.SetAttributeValue("wlan_if", cty.StringVal(cfg.WLANIf))
	body.SetAttributeValue("eth_if", cty.StringVal(cfg.EthIf))
	comment(body, "Interface carrying results to the exporter.")
	body.SetAttributeValue("mgt_if", cty.StringVal(cfg.MgtIf))
	body.AppendNewline()

	body.SetAttributeValue("connectivity_lookup", cty.StringVal(cfg.ConnectivityLookup))
	body.SetAttributeValue("ipv4_enabled", cty.BoolVal(cfg.IPv4Enabled))
	body.SetAttributeValue("ipv6_enabled", cty.BoolVal(cfg.IPv6Enabled))
	body.SetAttributeValue("ipv6_preferred", cty.BoolVal(cfg.IPv6Preferred))
	body.AppendNewline()

	comment(body, "Default-route correction.")
	body.SetAttributeValue("lease_dir", cty.StringVal(cfg.LeaseDir))
	body.SetAttributeValue("bounce_delay", cty.NumberIntVal(int64(cfg.BounceDelay)))
	body.SetAttributeValue("if_down_cmd", cty.StringVal(cfg.IfDownCmd))
	body.SetAttributeValue("if_up_cmd", cty.StringVal(cfg.IfUpCmd))
	body.AppendNewline()

	comment(body, "Failed tests per cycle before the watchdog counter is bumped.")
	body.SetAttributeValue("test_issue_threshold", cty.NumberIntVal(int64(cfg.TestIssueThreshold)))
	body.SetAttributeValue("test_timeout", cty.NumberIntVal(int64(cfg.TestTimeout)))
	body.SetAttributeValue("lock_file", cty.StringVal(cfg.LockFile))
	body.SetAttributeValue("lock_stale_after", cty.NumberIntVal(int64(cfg.LockStaleAfter)))
	body.SetAttributeValue("watchdog_file", cty.StringVal(cfg.WatchdogFile))
	body.SetAttributeValue("watchdog_threshold", cty.NumberIntVal(int64(cfg.WatchdogThreshold)))
	body.SetAttributeValue("debug", cty.BoolVal(cfg.Debug))
	body.AppendNewline()

	exp := body.AppendNewBlock("exporter", nil).Body()
	exp.SetAttributeValue("type", cty.StringVal(ExporterSpooler))
	comment(exp, "For influxdb2 set host, port, token, org and bucket. For splunk set host, port and token.")
	body.AppendNewline()

	spool := body.AppendNewBlock("spool", nil).Body()
	spool.SetAttributeValue("enabled", cty.BoolVal(true))
	spool.SetAttributeValue("dir", cty.StringVal(brand.DefaultSpoolDir))
	spool.SetAttributeValue("max_age", cty.NumberIntVal(30))
	body.AppendNewline()

	cache := body.AppendNewBlock("cache", nil).Body()
	cache.SetAttributeValue("enabled", cty.BoolVal(false))
	cache.SetAttributeValue("root", cty.StringVal(brand.DefaultCacheDir))
	cache.SetAttributeValue("format", cty.StringVal(CacheCSV))
	cache.SetAttributeValue("retention_days", cty.NumberIntVal(3))
	body.AppendNewline()

	ping := body.AppendNewBlock("ping", nil).Body()
	ping.SetAttributeValue("enabled", cty.BoolVal(true))
	ping.SetAttributeValue("targets", toCtyStringList([]string{"8.8.8.8", "www.google.com"}))
	ping.SetAttributeValue("count", cty.NumberIntVal(10))
	body.AppendNewline()

	dns := body.AppendNewBlock("dns", nil).Body()
	dns.SetAttributeValue("enabled", cty.BoolVal(true))
	dns.SetAttributeValue("targets", toCtyStringList([]string{"www.google.com", "www.cisco.com"}))
	body.AppendNewline()

	http := body.AppendNewBlock("http", nil).Body()
	http.SetAttributeValue("enabled", cty.BoolVal(true))
	http.SetAttributeValue("targets", toCtyStringList([]string{"https://www.google.com"}))
	body.AppendNewline()

	for _, name := range []string{"iperf3_tcp", "iperf3_udp"} {
		ib := body.AppendNewBlock(name, nil).Body()
		ib.SetAttributeValue("enabled", cty.BoolVal(false))
		ib.SetAttributeValue("server", cty.StringVal(""))
		ib.SetAttributeValue("port", cty.NumberIntVal(5201))
		ib.SetAttributeValue("duration", cty.NumberIntVal(10))
		if name == "iperf3_udp" {
			ib.SetAttributeValue("bandwidth", cty.StringVal("20M"))
		}
		body.AppendNewline()
	}

	dhcp := body.AppendNewBlock("dhcp", nil).Body()
	dhcp.SetAttributeValue("enabled", cty.BoolVal(false))
	comment(dhcp, "passive renews through dhclient, active runs a full exchange.")
	dhcp.SetAttributeValue("mode", cty.StringVal(DHCPPassive))

	return f.Bytes()
}

// WriteDefault writes RenderDefault to path. An existing file is not overwritten.
func WriteDefault(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(RenderDefault()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func comment(body *hclwrite.Body, text string) {
	body.AppendUnstructuredTokens(hclwrite.Tokens{
		{Type: hclsyntax.TokenComment, Bytes: []byte("# " + text + "\n")},
	})
}

func toCtyStringList(items []string) cty.Value {
	if len(items) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
