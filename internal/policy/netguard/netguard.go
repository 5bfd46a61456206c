// Package netguard keeps audit fetches off loopback, private and link-local
// networks.
package netguard

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// ErrNotPublic is returned for destinations that are not publicly routable.
var ErrNotPublic = errors.New("destination is not publicly routable")

// sharedAddressSpace is the carrier-grade NAT range, which netip does not
// classify as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Public reports whether addr is a publicly routable unicast address.
func Public(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}

// CheckURL rejects URLs whose host is localhost or a non-public IP literal.
// Names are resolved at dial time, where Control applies.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", ErrNotPublic, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !Public(addr) {
		return fmt.Errorf("%w: %s", ErrNotPublic, addr)
	}
	return nil
}

// Control is a net.Dialer Control hook. It sees the resolved address, so
// public names that resolve inward and redirects to internal hosts are
// refused too.
func Control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("split dial address: %w", err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("parse dial address: %w", err)
	}
	if !Public(addr) {
		return fmt.Errorf("%w: %s", ErrNotPublic, addr)
	}
	return nil
}
