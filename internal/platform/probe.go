package platform

import (
	"context"
	"net"
	"time"

	"github.com/golang/glog"
)

// HostProbe reports the storefront reachable when its host name resolves.
type HostProbe struct {
	host     string
	timeout  time.Duration
	resolver *net.Resolver
}

// NewHostProbe creates a probe for host.
func NewHostProbe(host string, timeout time.Duration) *HostProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HostProbe{host: host, timeout: timeout, resolver: net.DefaultResolver}
}

// Reachable resolves the host within the probe timeout.
func (p *HostProbe) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolver.LookupHost(ctx, p.host)
	if err != nil || len(addrs) == 0 {
		glog.V(1).Infof("[HostProbe] %s unreachable: %v", p.host, err)
		return false
	}
	return true
}
