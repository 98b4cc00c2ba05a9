package route53

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
)

// Name is the registry name of this backend.
const Name = "route53"

// Route 53 is a global service; requests are signed for us-east-1.
const signingRegion = "us-east-1"

func init() {
	dnsprovider.Register(Name, func(logger *zap.Logger, creds dnsprovider.Credentials) (dnsprovider.Backend, error) {
		return New(logger, creds)
	})
}

// Route53APIClient defines the subset of the Route 53 API used by the backend
type Route53APIClient interface {
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	GetChange(ctx context.Context, in *route53.GetChangeInput, optFns ...func(*route53.Options)) (*route53.GetChangeOutput, error)
}

// Backend submits upsert change sets to a Route 53 hosted zone.
type Backend struct {
	apiClient Route53APIClient
	logger    *zap.Logger
}

// New creates a Route 53 backend authenticated with the given static keys.
func New(logger *zap.Logger, creds dnsprovider.Credentials) (*Backend, error) {
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("route53: access key and secret are required")
	}

	client := route53.New(route53.Options{
		Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		Region:      signingRegion,
	})

	return &Backend{apiClient: client, logger: logger}, nil
}

// SubmitUpsertBatch sends one ChangeResourceRecordSets call holding an UPSERT
// per record.
func (b *Backend) SubmitUpsertBatch(ctx context.Context, zoneID string, records []*endpoint.Endpoint) (dnsprovider.ChangeHandle, error) {
	changes := make([]types.Change, 0, len(records))
	for _, r := range records {
		changes = append(changes, upsert(r))
	}

	out, err := b.apiClient.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch:  &types.ChangeBatch{Changes: changes},
	})
	if err != nil {
		return "", fmt.Errorf("route53: change resource record sets: %w", err)
	}
	if out.ChangeInfo == nil || out.ChangeInfo.Id == nil {
		return "", fmt.Errorf("route53: response carries no change id")
	}

	b.logger.Debug("Change batch accepted",
		zap.String("zone", zoneID),
		zap.String("change_id", *out.ChangeInfo.Id),
		zap.String("status", string(out.ChangeInfo.Status)))

	return dnsprovider.ChangeHandle(*out.ChangeInfo.Id), nil
}

// GetChangeStatus returns the status Route 53 reports for the change.
func (b *Backend) GetChangeStatus(ctx context.Context, handle dnsprovider.ChangeHandle) (dnsprovider.ChangeStatus, error) {
	out, err := b.apiClient.GetChange(ctx, &route53.GetChangeInput{Id: aws.String(string(handle))})
	if err != nil {
		return "", fmt.Errorf("route53: get change %s: %w", handle, err)
	}
	if out.ChangeInfo == nil {
		return "", fmt.Errorf("route53: get change %s: empty response", handle)
	}
	return dnsprovider.ChangeStatus(out.ChangeInfo.Status), nil
}

func upsert(r *endpoint.Endpoint) types.Change {
	rrs := make([]types.ResourceRecord, 0, len(r.Targets))
	for _, target := range r.Targets {
		rrs = append(rrs, types.ResourceRecord{Value: aws.String(target)})
	}

	return types.Change{
		Action: types.ChangeActionUpsert,
		ResourceRecordSet: &types.ResourceRecordSet{
			Name:            aws.String(r.DNSName),
			Type:            types.RRType(r.RecordType),
			TTL:             aws.Int64(int64(r.RecordTTL)),
			ResourceRecords: rrs,
		},
	}
}
