package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nilgora/dhcpv4"
	"github.com/nilgora/dhcpv4/internal/netudp"
)

var (
	flagIface       string
	flagRequestedIP string
	flagRetries     int
	flagTimeout     int
)

var rootCmd = &cobra.Command{
	Use:   "dhcpclient",
	Short: "Acquire a DHCPv4 lease on a network interface",
	RunE:  runDiscover,
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
		slog.Error("dhcpclient failed", "err", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&flagIface, "interface", "", "network interface to acquire a lease on")
	rootCmd.Flags().StringVar(&flagRequestedIP, "requested-ip", "", "optional address to request in DISCOVER")
	rootCmd.Flags().IntVar(&flagRetries, "retries", 10, "number of DISCOVER/REQUEST attempts before giving up")
	rootCmd.Flags().IntVar(&flagTimeout, "timeout-seconds", 10, "per-attempt timeout in seconds")
	rootCmd.MarkFlagRequired("interface")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mac, err := interfaceMAC(flagIface)
	if err != nil {
		return err
	}

	var requestedIP netip.Addr
	if flagRequestedIP != "" {
		requestedIP, err = netip.ParseAddr(flagRequestedIP)
		if err != nil {
			return fmt.Errorf("parsing --requested-ip: %w", err)
		}
	}

	cfg := dhcpv4.DefaultClientConfig(mac)
	cfg.Retries = flagRetries
	cfg.Timeout = time.Duration(flagTimeout) * time.Second

	dialer := netudp.Dialer{Interface: flagIface}
	client := dhcpv4.NewClient(cfg, dialer, nil, slog.Default())

	buf := make([]byte, 1500)
	settings, err := client.Discover(ctx, dhcpv4.SystemClock{}, buf, requestedIP)
	if err != nil {
		return fmt.Errorf("dhcp discover: %w", err)
	}

	fmt.Printf("leased %s from server %s, lease=%ds\n", settings.IP, settings.ServerIP, settings.LeaseSeconds)
	if settings.Subnet.IsValid() {
		fmt.Printf("subnet mask: %s\n", settings.Subnet)
	}
	if settings.Router.IsValid() {
		fmt.Printf("router: %s\n", settings.Router)
	}
	if settings.DNSPrimary.IsValid() {
		fmt.Printf("dns: %s\n", settings.DNSPrimary)
	}
	return nil
}

func interfaceMAC(name string) ([6]byte, error) {
	var mac [6]byte
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return mac, err
	}
	if len(ifi.HardwareAddr) != 6 {
		return mac, fmt.Errorf("interface %s has no Ethernet MAC", name)
	}
	copy(mac[:], ifi.HardwareAddr)
	return mac, nil
}

