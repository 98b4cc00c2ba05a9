package dnsprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
)

// Committer submits aggregated record batches as a single upsert change set.
type Committer struct {
	logger *zap.Logger
}

// NewCommitter returns a Committer.
func NewCommitter(logger *zap.Logger) *Committer {
	return &Committer{logger: logger}
}

// Commit upserts records into zoneID. An empty batch is never submitted and
// yields an empty handle.
func (c *Committer) Commit(ctx context.Context, backend Backend, zoneID string, records []*endpoint.Endpoint) (ChangeHandle, error) {
	if len(records) == 0 {
		c.logger.Info("No records to submit", zap.String("zone", zoneID))
		return "", nil
	}

	for _, r := range records {
		c.logger.Debug("Queueing upsert",
			zap.String("zone", zoneID),
			zap.String("dnsName", r.DNSName),
			zap.String("type", r.RecordType),
			zap.Strings("targets", r.Targets),
			zap.Int64("ttl", int64(r.RecordTTL)))
	}

	handle, err := backend.SubmitUpsertBatch(ctx, zoneID, records)
	if err != nil {
		fields := []zap.Field{
			zap.String("zone", zoneID),
			zap.Int("records", len(records)),
			zap.Error(err),
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			fields = append(fields,
				zap.String("error_code", apiErr.ErrorCode()),
				zap.String("error_message", apiErr.ErrorMessage()))
		}
		c.logger.Error("Failed to submit DNS changes", fields...)
		return "", fmt.Errorf("zone %s: %w: %w", zoneID, ErrSubmitFailed, err)
	}

	c.logger.Info("DNS changes submitted",
		zap.String("zone", zoneID),
		zap.String("change_id", string(handle)),
		zap.Int("records", len(records)))
	return handle, nil
}
