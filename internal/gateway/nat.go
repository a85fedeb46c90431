package gateway

import (
	"fmt"
	"net"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/sirupsen/logrus"
)

// mappingLeaseSeconds is how long a single NAT-PMP/UPnP port mapping is
// requested for; Install re-maps on every process start so an expired
// lease is self-healing.
const mappingLeaseSeconds = 3600

// NATCoordinator installs and removes the DNAT-equivalent port mappings for
// a gateway slug's allocated port window, via NAT-PMP (preferred) or UPnP
// IGDv1 against the local router.
type NATCoordinator struct {
	pmp  *natpmp.Client
	upnp *internetgateway1.WANIPConnection1
	ip   net.IP
	log  *logrus.Logger
}

// NewNATCoordinator discovers the local gateway device and picks NAT-PMP or
// UPnP: NAT-PMP is tried first, then UPnP.
func NewNATCoordinator(log *logrus.Logger) (*NATCoordinator, error) {
	if log == nil {
		log = logrus.New()
	}
	c := &NATCoordinator{log: log}

	if gw, err := gateway.DiscoverGateway(); err == nil {
		c.pmp = natpmp.NewClient(gw)
		if res, err := c.pmp.GetExternalAddress(); err == nil {
			c.ip = net.IPv4(res.ExternalIPAddress[0], res.ExternalIPAddress[1], res.ExternalIPAddress[2], res.ExternalIPAddress[3])
		}
	}
	if c.ip == nil {
		if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
			c.upnp = clients[0]
			if ipStr, err := c.upnp.GetExternalIPAddress(); err == nil {
				c.ip = net.ParseIP(ipStr)
			}
		}
	}
	if c.ip == nil {
		return nil, fmt.Errorf("gateway: nat device not found")
	}
	return c, nil
}

// ExternalIP is the gateway device's detected public address.
func (c *NATCoordinator) ExternalIP() net.IP { return c.ip }

// Install maps every port in [basePort, basePort+count) for both TCP and
// UDP, forwarding to internalIP. Partial failures are logged and collected;
// the slug is still considered "installed" for any port that succeeded, as
// a subsequent Install call (e.g. a crash-recovery restore) will retry the
// rest.
func (c *NATCoordinator) Install(slug, internalIP string, basePort, count int) error {
	var firstErr error
	for port := basePort; port < basePort+count; port++ {
		for _, proto := range []string{"tcp", "udp"} {
			if err := c.mapPort(proto, port); err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"slug": slug, "port": port, "proto": proto,
				}).Warn("nat mapping failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (c *NATCoordinator) mapPort(proto string, port int) error {
	if c.pmp != nil {
		if _, err := c.pmp.AddPortMapping(proto, port, port, mappingLeaseSeconds); err == nil {
			return nil
		}
	}
	if c.upnp != nil {
		desc := fmt.Sprintf("decent-cloud-%s-%d", proto, port)
		upnpProto := "TCP"
		if proto == "udp" {
			upnpProto = "UDP"
		}
		if err := c.upnp.AddPortMapping("", uint16(port), upnpProto, uint16(port), c.ip.String(), true, desc, mappingLeaseSeconds); err == nil {
			return nil
		}
	}
	return fmt.Errorf("gateway: map %s/%d failed: no working nat backend", proto, port)
}

// Remove tears down the TCP+UDP mappings for [basePort, basePort+count).
// Best-effort: individual unmap failures are logged, not returned, since
// the caller is freeing the allocation regardless.
func (c *NATCoordinator) Remove(slug string, basePort, count int) {
	for port := basePort; port < basePort+count; port++ {
		for _, proto := range []string{"tcp", "udp"} {
			if err := c.unmapPort(proto, port); err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"slug": slug, "port": port, "proto": proto,
				}).Warn("nat unmap failed")
			}
		}
	}
}

func (c *NATCoordinator) unmapPort(proto string, port int) error {
	if c.pmp != nil {
		_, err := c.pmp.AddPortMapping(proto, port, port, 0)
		return err
	}
	if c.upnp != nil {
		upnpProto := "TCP"
		if proto == "udp" {
			upnpProto = "UDP"
		}
		return c.upnp.DeletePortMapping("", uint16(port), upnpProto)
	}
	return nil
}

// RestoreAll re-installs NAT rules for every persisted allocation on
// startup (crash recovery). Allocations lacking InternalIP (legacy format)
// are skipped with a warning, per spec §4.13.
func RestoreAll(nat *NATCoordinator, allocations []Allocation) (restored, skipped int) {
	for _, a := range allocations {
		if a.InternalIP == "" {
			nat.log.WithField("slug", a.Slug).Warn("skipping nat restore: allocation has no internal_ip (legacy format)")
			skipped++
			continue
		}
		if err := nat.Install(a.Slug, a.InternalIP, a.BasePort, a.Count); err != nil {
			nat.log.WithError(err).WithField("slug", a.Slug).Warn("nat restore incomplete")
			skipped++
			continue
		}
		restored++
	}
	return restored, skipped
}
