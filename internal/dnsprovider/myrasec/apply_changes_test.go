package myrasec

import (
	"context"
	"errors"
	"testing"

	myrasec "github.com/Myra-Security-GmbH/myrasec-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
)

// MockMyraSecClient is a mock implementation of the MyraSecAPIClient interface
type MockMyraSecClient struct {
	mock.Mock
}

// ListDomains mocks the ListDomains method
func (m *MockMyraSecClient) ListDomains(params map[string]string) ([]myrasec.Domain, error) {
	args := m.Called(params)
	return args.Get(0).([]myrasec.Domain), args.Error(1)
}

// ListDNSRecords mocks the ListDNSRecords method
func (m *MockMyraSecClient) ListDNSRecords(domainId int, params map[string]string) ([]myrasec.DNSRecord, error) {
	args := m.Called(domainId, params)
	return args.Get(0).([]myrasec.DNSRecord), args.Error(1)
}

// CreateDNSRecord mocks the CreateDNSRecord method
func (m *MockMyraSecClient) CreateDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error) {
	args := m.Called(record, domainId)
	return args.Get(0).(*myrasec.DNSRecord), args.Error(1)
}

// UpdateDNSRecord mocks the UpdateDNSRecord method
func (m *MockMyraSecClient) UpdateDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error) {
	args := m.Called(record, domainId)
	return args.Get(0).(*myrasec.DNSRecord), args.Error(1)
}

// DeleteDNSRecord mocks the DeleteDNSRecord method
func (m *MockMyraSecClient) DeleteDNSRecord(record *myrasec.DNSRecord, domainId int) (*myrasec.DNSRecord, error) {
	args := m.Called(record, domainId)
	return args.Get(0).(*myrasec.DNSRecord), args.Error(1)
}

var domains = []myrasec.Domain{
	{ID: 42, Name: "other.org"},
	{ID: 123, Name: "example.com"},
}

func aRecord(name, ip string) *endpoint.Endpoint {
	return endpoint.NewEndpointWithTTL(name, endpoint.RecordTypeA, 300, ip)
}

// TestSubmitCreatesMissingRecords tests that records absent from the domain are created
func TestSubmitCreatesMissingRecords(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{}, nil)
	mockClient.On("CreateDNSRecord", mock.Anything, 123).Return(&myrasec.DNSRecord{}, nil)

	b := newBackend(zap.NewNop(), mockClient)

	handle, err := b.SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{
		aRecord("read-1.example.com", "10.0.0.1"),
		aRecord("write-1.example.com", "10.0.0.2"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	mockClient.AssertNumberOfCalls(t, "CreateDNSRecord", 2)
	mockClient.AssertCalled(t, "CreateDNSRecord", mock.MatchedBy(func(r *myrasec.DNSRecord) bool {
		return r.Name == "read-1.example.com" && r.Value == "10.0.0.1" && r.RecordType == "A" && r.TTL == 300
	}), 123)

	status, err := b.GetChangeStatus(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, dnsprovider.StatusInSync, status)
}

// TestSubmitUpdatesChangedRecord tests that a record pointing elsewhere is updated in place
func TestSubmitUpdatesChangedRecord(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{
		{ID: 7, Name: "read-1.example.com", Value: "10.0.0.9", RecordType: "A", TTL: 300, Enabled: true},
	}, nil)
	mockClient.On("UpdateDNSRecord", mock.Anything, 123).Return(&myrasec.DNSRecord{}, nil)

	b := newBackend(zap.NewNop(), mockClient)

	_, err := b.SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{aRecord("read-1.example.com", "10.0.0.1")})
	require.NoError(t, err)

	mockClient.AssertCalled(t, "UpdateDNSRecord", mock.MatchedBy(func(r *myrasec.DNSRecord) bool {
		return r.ID == 7 && r.Value == "10.0.0.1"
	}), 123)
	mockClient.AssertNotCalled(t, "CreateDNSRecord", mock.Anything, mock.Anything)
}

// TestSubmitTwiceIsIdempotent tests that an up to date record is left alone
func TestSubmitTwiceIsIdempotent(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{
		{ID: 7, Name: "read-1.example.com", Value: "10.0.0.1", RecordType: "A", TTL: 300, Enabled: true},
	}, nil)

	b := newBackend(zap.NewNop(), mockClient)
	records := []*endpoint.Endpoint{aRecord("read-1.example.com", "10.0.0.1")}

	for i := 0; i < 2; i++ {
		_, err := b.SubmitUpsertBatch(context.Background(), "example.com", records)
		require.NoError(t, err)
	}

	mockClient.AssertNotCalled(t, "CreateDNSRecord", mock.Anything, mock.Anything)
	mockClient.AssertNotCalled(t, "UpdateDNSRecord", mock.Anything, mock.Anything)
	// the selected domain is cached
	mockClient.AssertNumberOfCalls(t, "ListDomains", 1)
}

// TestSubmitDeletesSurplusRecords tests that extra values under the same name are removed
func TestSubmitDeletesSurplusRecords(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{
		{ID: 7, Name: "read-1.example.com", Value: "10.0.0.1", RecordType: "A", TTL: 300, Enabled: true},
		{ID: 8, Name: "read-1.example.com", Value: "10.0.0.5", RecordType: "A", TTL: 300, Enabled: true},
	}, nil)
	mockClient.On("DeleteDNSRecord", mock.Anything, 123).Return(&myrasec.DNSRecord{}, nil)

	b := newBackend(zap.NewNop(), mockClient)

	_, err := b.SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{aRecord("read-1.example.com", "10.0.0.1")})
	require.NoError(t, err)

	mockClient.AssertCalled(t, "DeleteDNSRecord", mock.MatchedBy(func(r *myrasec.DNSRecord) bool {
		return r.ID == 8
	}), 123)
	mockClient.AssertNumberOfCalls(t, "DeleteDNSRecord", 1)
}

// TestSubmitDuplicateIsNotAnError tests that MyraSec's duplicate response counts as success
func TestSubmitDuplicateIsNotAnError(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{}, nil)
	mockClient.On("CreateDNSRecord", mock.Anything, 123).
		Return((*myrasec.DNSRecord)(nil), errors.New("This value is already used"))

	b := newBackend(zap.NewNop(), mockClient)

	_, err := b.SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{aRecord("read-1.example.com", "10.0.0.1")})
	assert.NoError(t, err)
}

// TestSubmitCreateError tests that an API failure fails the batch
func TestSubmitCreateError(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)
	mockClient.On("ListDNSRecords", 123, mock.Anything).Return([]myrasec.DNSRecord{}, nil)
	mockClient.On("CreateDNSRecord", mock.Anything, 123).
		Return((*myrasec.DNSRecord)(nil), errors.New("API error"))

	b := newBackend(zap.NewNop(), mockClient)

	handle, err := b.SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{
		aRecord("read-1.example.com", "10.0.0.1"),
		aRecord("read-2.example.com", "10.0.0.2"),
	})
	assert.Error(t, err)
	assert.Empty(t, handle)
}

// TestSelectDomainSubdomainZone tests that a zone below a MyraSec domain selects the parent
func TestSelectDomainSubdomainZone(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)

	domain, err := newBackend(zap.NewNop(), mockClient).SelectDomain("db.example.com.")
	require.NoError(t, err)
	assert.Equal(t, 123, domain.ID)
}

// TestSelectDomainNotFound tests that an unknown zone is reported
func TestSelectDomainNotFound(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return(domains, nil)

	_, err := newBackend(zap.NewNop(), mockClient).SelectDomain("example.net")
	assert.ErrorIs(t, err, ErrDomainNotFound)
}

// TestSelectDomainError tests error handling when listing domains fails
func TestSelectDomainError(t *testing.T) {
	mockClient := new(MockMyraSecClient)
	mockClient.On("ListDomains", mock.Anything).Return([]myrasec.Domain{}, errors.New("API error"))

	_, err := newBackend(zap.NewNop(), mockClient).SubmitUpsertBatch(context.Background(), "example.com", []*endpoint.Endpoint{aRecord("read-1.example.com", "10.0.0.1")})
	assert.Error(t, err)
	mockClient.AssertCalled(t, "ListDomains", mock.Anything)
}

// TestGetChangeStatusUnknownHandle tests that foreign handles are rejected
func TestGetChangeStatusUnknownHandle(t *testing.T) {
	_, err := newBackend(zap.NewNop(), new(MockMyraSecClient)).GetChangeStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, dnsprovider.ErrChangeNotFound)
}

// TestNewRequiresCredentials tests constructor validation
func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(zap.NewNop(), dnsprovider.Credentials{Provider: Name, AccessKey: "key"})
	assert.Error(t, err)

	_, err = New(zap.NewNop(), dnsprovider.Credentials{Provider: Name, SecretKey: "secret"})
	assert.Error(t, err)

	assert.True(t, dnsprovider.Registered(Name))
}
