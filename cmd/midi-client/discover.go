package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_midi-broker._tcp"

// ErrNoBrokerFound is returned by discoverBroker when the mDNS browse window
// elapses without resolving any instance.
var ErrNoBrokerFound = errors.New("no midi-broker found via mDNS")

// discoverBroker browses for a _midi-broker._tcp instance on the local
// network and returns its host:port, used when --discover is set and no
// explicit SERVER_IP was given.
func discoverBroker(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("discover: resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 1)
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(browseCtx, mdnsServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("discover: browse: %w", err)
	}
	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return "", ErrNoBrokerFound
		}
		host := entry.HostName
		if len(entry.AddrIPv4) > 0 {
			host = entry.AddrIPv4[0].String()
		}
		return net.JoinHostPort(host, strconv.Itoa(entry.Port)), nil
	case <-browseCtx.Done():
		return "", ErrNoBrokerFound
	}
}
