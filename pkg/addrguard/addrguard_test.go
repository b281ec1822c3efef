package addrguard

import (
	"context"
	"net/netip"
	"testing"
)

func TestCheckAddrClosed(t *testing.T) {
	g := New(false)

	rejected := []string{
		"127.0.0.1",
		"::1",
		"10.0.0.5",
		"172.16.1.1",
		"192.168.1.1",
		"169.254.169.254",
		"169.254.0.1",
		"100.100.100.200",
		"0.0.0.0",
		"fe80::1",
		"fd12:3456::1",
	}
	for _, s := range rejected {
		if err := g.CheckAddr(netip.MustParseAddr(s)); err == nil {
			t.Errorf("CheckAddr(%s) = nil, want error", s)
		}
	}

	allowed := []string{
		"93.184.216.34",
		"8.8.8.8",
		"2606:2800:220:1:248:1893:25c8:1946",
	}
	for _, s := range allowed {
		if err := g.CheckAddr(netip.MustParseAddr(s)); err != nil {
			t.Errorf("CheckAddr(%s) = %v, want nil", s, err)
		}
	}
}

func TestCheckAddrAllowPrivate(t *testing.T) {
	g := New(true)

	for _, s := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.1", "169.254.169.254"} {
		if err := g.CheckAddr(netip.MustParseAddr(s)); err != nil {
			t.Errorf("CheckAddr(%s) with allowPrivate = %v, want nil", s, err)
		}
	}
}

func TestCheckAddrUnmapsV4InV6(t *testing.T) {
	g := New(false)
	if err := g.CheckAddr(netip.MustParseAddr("::ffff:127.0.0.1")); err == nil {
		t.Error("v4-mapped loopback passed the guard")
	}
}

func TestCheckURL(t *testing.T) {
	g := New(false)
	ctx := context.Background()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://127.0.0.1/hook", true},
		{"https://[::1]:8443/hook", true},
		{"http://10.1.2.3:9000/hook", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"ftp://example.com/file", true},
		{"not a url at all ://", true},
		{"http://93.184.216.34/hook", false},
	}
	for _, tt := range tests {
		err := g.CheckURL(ctx, tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}
