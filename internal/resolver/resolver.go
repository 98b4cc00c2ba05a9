package resolver

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/netguru/rds-cluster-dns/internal/topology"
	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

var (
	// ErrResolverFailed is returned when the lookup host cannot run the lookup
	ErrResolverFailed = errors.ErrResolverFailed

	// ErrNoAddress is returned when the lookup output holds no IPv4 address
	ErrNoAddress = errors.ErrNoAddress
)

var (
	ipv4Token = regexp.MustCompile(`(?:[0-9]{1,3}\.){3}[0-9]{1,3}`)
	hostname  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)
)

// Runner executes a command on a remote host as user and returns its stdout.
type Runner interface {
	Run(ctx context.Context, host, user, command string) (string, error)
}

// Resolver turns an advertised endpoint into a routable IP.
type Resolver interface {
	Resolve(ctx context.Context, address, host, user string) (string, error)
}

// GetentResolver resolves addresses by running getent on a lookup host that
// can see the private network the cluster lives in.
type GetentResolver struct {
	runner Runner
}

// NewGetentResolver returns a GetentResolver using runner.
func NewGetentResolver(runner Runner) *GetentResolver {
	return &GetentResolver{runner: runner}
}

// Resolve runs `getent hosts <address>` on host as user and returns the
// first IPv4 address in the output.
func (g *GetentResolver) Resolve(ctx context.Context, address, host, user string) (string, error) {
	if !hostname.MatchString(address) {
		return "", fmt.Errorf("invalid endpoint address %q: %w", address, ErrResolverFailed)
	}

	out, err := g.runner.Run(ctx, host, user, fmt.Sprintf("getent hosts '%s'", address))
	if err != nil {
		return "", fmt.Errorf("%s@%s: %w: %w", user, host, ErrResolverFailed, err)
	}
	return ParseIPv4(out)
}

// ParseIPv4 returns the first valid IPv4 address found in out.
func ParseIPv4(out string) (string, error) {
	for _, token := range ipv4Token.FindAllString(out, -1) {
		if ip := net.ParseIP(token); ip != nil && ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return "", fmt.Errorf("%q: %w", strings.TrimSpace(out), ErrNoAddress)
}

// Adapter resolves every member of a topology, one member at a time.
type Adapter struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewAdapter returns an Adapter backed by resolver.
func NewAdapter(logger *zap.Logger, resolver Resolver) *Adapter {
	return &Adapter{resolver: resolver, logger: logger}
}

// ResolveMembers sets the IP of every member that has an endpoint. A member
// that cannot be resolved keeps an empty IP and is counted as dropped; it
// never fails the whole topology. Each member gets exactly one attempt.
func (a *Adapter) ResolveMembers(ctx context.Context, topo *topology.Topology, host, user string) (dropped int) {
	members := topo.Members()
	for i, m := range members {
		if ctx.Err() != nil {
			return dropped + len(members) - i
		}
		if m.Endpoint == "" {
			dropped++
			continue
		}

		ip, err := a.resolver.Resolve(ctx, m.Endpoint, host, user)
		if err != nil {
			a.logger.Error("Failed to resolve cluster instance",
				zap.String("cluster", topo.Cluster),
				zap.String("member", m.ID),
				zap.String("endpoint", m.Endpoint),
				zap.String("lookup_host", host),
				zap.Error(err))
			dropped++
			continue
		}

		m.IP = ip
		a.logger.Info("Cluster instance resolved",
			zap.String("cluster", topo.Cluster),
			zap.String("member", m.ID),
			zap.String("endpoint", m.Endpoint),
			zap.String("ip", ip))
	}
	return dropped
}
