package dhcpv4

import (
	"net/netip"
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	cfg := DefaultClientConfig(mac)
	if cfg.MAC != mac {
		t.Errorf("MAC mismatch: got %v", cfg.MAC)
	}
	if cfg.Retries != 10 {
		t.Errorf("Retries = %d, want 10", cfg.Retries)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
}

func TestServerConfigValidateRequiresServerIP(t *testing.T) {
	cfg := testServerConfig()
	cfg.ServerIP = netip.Addr{}
	if err := cfg.validate(); err != errMissingServerIP {
		t.Errorf("want errMissingServerIP, got %v", err)
	}
}

func TestServerConfigValidateRequiresPoolRange(t *testing.T) {
	cfg := testServerConfig()
	cfg.RangeStart = netip.Addr{}
	if err := cfg.validate(); err != errMissingPoolRange {
		t.Errorf("want errMissingPoolRange, got %v", err)
	}
}

func TestServerConfigValidateLimitsDNSServers(t *testing.T) {
	cfg := testServerConfig()
	cfg.DNS = []netip.Addr{mustAddr("8.8.8.8"), mustAddr("8.8.4.4"), mustAddr("1.1.1.1")}
	if err := cfg.validate(); err != errTooManyDNSServers {
		t.Errorf("want errTooManyDNSServers, got %v", err)
	}
}

func TestServerConfigValidateAccepts(t *testing.T) {
	cfg := testServerConfig()
	if err := cfg.validate(); err != nil {
		t.Errorf("want valid config, got %v", err)
	}
}
