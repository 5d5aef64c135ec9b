// Package discovery finds printers on the local network via mDNS/DNS-SD and
// merges what it finds into the repository without clobbering operator edits.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Oberon01/tonertrack-v2/logger"
)

// serviceTypes are the DNS-SD service types printers advertise.
var serviceTypes = []string{"_ipp._tcp", "_ipps._tcp", "_printer._tcp"}

// Discovered is one device found on the network.
type Discovered struct {
	Address  string
	Name     string
	Location string
}

// Browser runs bounded mDNS browse windows and tags results with a location
// derived from the configured site map.
type Browser struct {
	window time.Duration
	sites  map[string]string
	log    *logger.Logger

	// resolve is swapped in tests; browsing real multicast from a unit
	// test is neither portable nor deterministic. Contract: resolve
	// always arranges for entries to be closed, success or failure.
	resolve func(ctx context.Context, svc string, entries chan<- *zeroconf.ServiceEntry) error
}

// NewBrowser creates a browser. window bounds each browse; sites maps an
// address prefix to a location tag (longest prefix wins).
func NewBrowser(window time.Duration, sites map[string]string, log *logger.Logger) *Browser {
	if window <= 0 {
		window = 6 * time.Second
	}
	return &Browser{
		window:  window,
		sites:   sites,
		log:     log,
		resolve: browseService,
	}
}

func browseService(ctx context.Context, svc string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		// Browse never ran, so nobody else will close the channel
		close(entries)
		return err
	}
	// zeroconf owns the channel from here: its mainloop starts before the
	// query is sent and closes entries itself, even when Browse errors
	return resolver.Browse(ctx, svc, "local.", entries)
}

// Browse listens for printer advertisements for the configured window and
// returns the deduplicated devices, sorted by address. It never fails the
// caller: a resolver error on one service type just loses that type.
func (b *Browser) Browse(ctx context.Context) []Discovered {
	ctx, cancel := context.WithTimeout(ctx, b.window)
	defer cancel()

	found := make(chan Discovered)
	done := make(chan struct{})
	byAddr := make(map[string]Discovered)

	go func() {
		defer close(done)
		for d := range found {
			if _, seen := byAddr[d.Address]; !seen {
				byAddr[d.Address] = d
			}
		}
	}()

	collected := make(chan struct{}, len(serviceTypes))
	for _, svc := range serviceTypes {
		svc := svc
		entries := make(chan *zeroconf.ServiceEntry)
		go func() {
			for e := range entries {
				for _, ip := range e.AddrIPv4 {
					addr := ip.String()
					found <- Discovered{
						Address:  addr,
						Name:     strings.TrimSpace(e.Instance),
						Location: b.siteFor(addr),
					}
				}
			}
			collected <- struct{}{}
		}()
		go func() {
			if err := b.resolve(ctx, svc, entries); err != nil && b.log != nil {
				b.log.Warn("mDNS browse failed", "service", svc, "error", err)
			}
		}()
	}

	for range serviceTypes {
		<-collected
	}
	close(found)
	<-done

	out := make([]Discovered, 0, len(byAddr))
	for _, d := range byAddr {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	if b.log != nil {
		b.log.Info("Discovery browse finished", "devices", len(out))
	}
	return out
}

// siteFor maps an address to a location tag by longest matching prefix.
func (b *Browser) siteFor(addr string) string {
	best := ""
	location := ""
	for prefix, loc := range b.sites {
		if strings.HasPrefix(addr, prefix) && len(prefix) > len(best) {
			best = prefix
			location = loc
		}
	}
	return location
}
