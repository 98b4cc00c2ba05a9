package myrasec

import (
	"context"
	"fmt"
	"sync"

	myrasec "github.com/Myra-Security-GmbH/myrasec-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

// Name is the registry name of this backend.
const Name = "myrasec"

// ErrDomainNotFound is returned when the zone does not match any MyraSec domain
var ErrDomainNotFound = errors.ErrDomainNotFound

func init() {
	dnsprovider.Register(Name, func(logger *zap.Logger, creds dnsprovider.Credentials) (dnsprovider.Backend, error) {
		return New(logger, creds)
	})
}

// MyraSecAPIClient defines the interface for interacting with the MyraSec API
type MyraSecAPIClient interface {
	ListDomains(params map[string]string) ([]myrasec.Domain, error)
	ListDNSRecords(domainId int, params map[string]string) ([]myrasec.DNSRecord, error)
	CreateDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error)
	UpdateDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error)
	DeleteDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error)
}

// Backend upserts records into a MyraSec domain. The zone id of a task is
// the MyraSec domain name.
//
// MyraSec applies record changes synchronously, so every change handle the
// backend issues is already in sync.
type Backend struct {
	apiClient MyraSecAPIClient
	logger    *zap.Logger

	mu      sync.Mutex
	domains map[string]*myrasec.Domain
	changes map[dnsprovider.ChangeHandle]struct{}
}

// New initializes a MyraSec backend with the API key and secret in creds.
func New(logger *zap.Logger, creds dnsprovider.Credentials) (*Backend, error) {
	if creds.AccessKey == "" {
		return nil, fmt.Errorf("no API key provided")
	}

	if creds.SecretKey == "" {
		return nil, fmt.Errorf("no API secret provided")
	}

	api, err := myrasec.New(creds.AccessKey, creds.SecretKey)
	if err != nil {
		logger.Error("Failed to create MyraSec API client", zap.Error(err))
		return nil, fmt.Errorf("failed to create MyraSec API client: %w", err)
	}

	// Set the API language to English to ensure consistent responses
	api.Language = "en"

	return newBackend(logger, api), nil
}

func newBackend(logger *zap.Logger, client MyraSecAPIClient) *Backend {
	return &Backend{
		apiClient: client,
		logger:    logger,
		domains:   make(map[string]*myrasec.Domain),
		changes:   make(map[dnsprovider.ChangeHandle]struct{}),
	}
}

// SelectDomain finds the MyraSec domain whose name matches zone. Results are
// cached per zone.
func (b *Backend) SelectDomain(zone string) (*myrasec.Domain, error) {
	zone = stripTrailingDot(zone)

	b.mu.Lock()
	cached, ok := b.domains[zone]
	b.mu.Unlock()
	if ok {
		b.logger.Debug("Using cached domain", zap.String("domain", cached.Name))
		return cached, nil
	}

	b.logger.Debug("Retrieving domains from MyraSec API")
	domains, err := b.apiClient.ListDomains(nil)
	if err != nil {
		b.logger.Error("Failed to list domains", zap.Error(err))
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	var selected *myrasec.Domain
	for i := range domains {
		if stripTrailingDot(domains[i].Name) == zone {
			selected = &domains[i]
			break
		}
	}

	// the zone may be a subdomain of a MyraSec domain
	if selected == nil {
		for i := range domains {
			parent := endpoint.DomainFilter{Filters: []string{domains[i].Name}}
			if parent.Match(zone) {
				selected = &domains[i]
				break
			}
		}
	}

	if selected == nil {
		b.logger.Error("No MyraSec domain matches zone",
			zap.String("zone", zone),
			zap.Int("available_domains", len(domains)))
		return nil, fmt.Errorf("zone %q: %w", zone, ErrDomainNotFound)
	}

	b.logger.Debug("Selected domain",
		zap.String("domain_name", selected.Name),
		zap.Int("domain_id", selected.ID))

	b.mu.Lock()
	b.domains[zone] = selected
	b.mu.Unlock()
	return selected, nil
}

// SubmitUpsertBatch upserts every record into the domain named by zoneID.
func (b *Backend) SubmitUpsertBatch(ctx context.Context, zoneID string, records []*endpoint.Endpoint) (dnsprovider.ChangeHandle, error) {
	domain, err := b.SelectDomain(zoneID)
	if err != nil {
		return "", err
	}

	if err := b.upsertWithWorkers(ctx, domain, records); err != nil {
		return "", err
	}

	handle := dnsprovider.ChangeHandle(uuid.NewString())
	b.mu.Lock()
	b.changes[handle] = struct{}{}
	b.mu.Unlock()

	return handle, nil
}

// GetChangeStatus reports INSYNC for every change this backend applied.
func (b *Backend) GetChangeStatus(_ context.Context, handle dnsprovider.ChangeHandle) (dnsprovider.ChangeStatus, error) {
	b.mu.Lock()
	_, ok := b.changes[handle]
	b.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("change %s: %w", handle, dnsprovider.ErrChangeNotFound)
	}
	return dnsprovider.StatusInSync, nil
}
