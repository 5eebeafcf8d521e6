package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nilgora/dhcpv4"
	"github.com/nilgora/dhcpv4/internal/netudp"
)

var (
	flagIface         string
	flagServerIP      string
	flagGateway       string
	flagSubnet        string
	flagDNS           []string
	flagRangeStart    string
	flagRangeEnd      string
	flagLeaseSeconds  int
	flagCapacity      int
	flagMetricsListen string
	flagDiscoverRate  float64
	flagDiscoverBurst int
)

var rootCmd = &cobra.Command{
	Use:   "dhcpserver",
	Short: "Run a DHCPv4 server over a bounded address pool",
	RunE:  runServer,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("dhcpserver failed", "err", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagIface, "interface", "", "network interface to bind the server socket to")
	f.StringVar(&flagServerIP, "server-ip", "", "this server's IPv4 address, sent as ServerIdentifier")
	f.StringVar(&flagGateway, "gateway", "", "optional default gateway to offer clients")
	f.StringVar(&flagSubnet, "subnet", "", "optional subnet mask to offer clients")
	f.StringSliceVar(&flagDNS, "dns", nil, "up to two DNS servers to offer clients")
	f.StringVar(&flagRangeStart, "range-start", "", "first address of the allocation pool")
	f.StringVar(&flagRangeEnd, "range-end", "", "last address of the allocation pool")
	f.IntVar(&flagLeaseSeconds, "lease-seconds", 3600, "lease duration in seconds")
	f.IntVar(&flagCapacity, "capacity", 254, "maximum number of simultaneous leases")
	f.StringVar(&flagMetricsListen, "metrics-listen", "", "optional address to serve Prometheus metrics on, e.g. :9100")
	f.Float64Var(&flagDiscoverRate, "discover-rate", 0, "optional per-MAC DISCOVER rate limit (messages/sec); 0 disables")
	f.IntVar(&flagDiscoverBurst, "discover-burst", 5, "burst size for --discover-rate")
	rootCmd.MarkFlagRequired("interface")
	rootCmd.MarkFlagRequired("server-ip")
	rootCmd.MarkFlagRequired("range-start")
	rootCmd.MarkFlagRequired("range-end")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := serverConfigFromFlags()
	if err != nil {
		return err
	}

	server, err := dhcpv4.NewServer(cfg, flagCapacity, dhcpv4.SystemClock{}, slog.Default())
	if err != nil {
		return fmt.Errorf("configuring server: %w", err)
	}

	if flagDiscoverRate > 0 {
		server.SetDiscoverLimiter(dhcpv4.NewDiscoverLimiter(rate.Limit(flagDiscoverRate), flagDiscoverBurst))
	}

	if flagMetricsListen != "" {
		metrics := dhcpv4.NewMetrics()
		server.SetMetrics(metrics)
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics)
		go serveMetrics(flagMetricsListen, reg)
	}

	binder := netudp.Binder{Interface: flagIface}
	buf := make([]byte, 1500)
	slog.Info("dhcpserver listening", "interface", flagIface, "server_ip", flagServerIP)
	return server.Run(ctx, binder, buf)
}

func serverConfigFromFlags() (dhcpv4.ServerConfig, error) {
	var cfg dhcpv4.ServerConfig
	var err error

	if cfg.ServerIP, err = netip.ParseAddr(flagServerIP); err != nil {
		return cfg, fmt.Errorf("parsing --server-ip: %w", err)
	}
	if cfg.RangeStart, err = netip.ParseAddr(flagRangeStart); err != nil {
		return cfg, fmt.Errorf("parsing --range-start: %w", err)
	}
	if cfg.RangeEnd, err = netip.ParseAddr(flagRangeEnd); err != nil {
		return cfg, fmt.Errorf("parsing --range-end: %w", err)
	}
	if flagGateway != "" {
		if cfg.Gateway, err = netip.ParseAddr(flagGateway); err != nil {
			return cfg, fmt.Errorf("parsing --gateway: %w", err)
		}
	}
	if flagSubnet != "" {
		if cfg.Subnet, err = netip.ParseAddr(flagSubnet); err != nil {
			return cfg, fmt.Errorf("parsing --subnet: %w", err)
		}
	}
	for _, s := range flagDNS {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return cfg, fmt.Errorf("parsing --dns %q: %w", s, err)
		}
		cfg.DNS = append(cfg.DNS, addr)
	}
	cfg.LeaseDuration = time.Duration(flagLeaseSeconds) * time.Second
	return cfg, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "err", err)
	}
}
