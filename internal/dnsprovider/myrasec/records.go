package myrasec

import (
	"fmt"
	"strings"

	myrasec "github.com/Myra-Security-GmbH/myrasec-go/v2"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
)

// upsertRecord converges the records under one name to the desired targets
// and TTL. Existing records are updated in place where possible, surplus ones
// are deleted and missing ones created.
func (b *Backend) upsertRecord(domainID int, task upsertTask) error {
	ep := task.change
	dnsName := stripTrailingDot(ep.DNSName)
	ttl := int(ep.RecordTTL)

	var remaining []string
	for _, target := range ep.Targets {
		if !containsValue(task.existing, target) {
			remaining = append(remaining, target)
		}
	}

	for i := range task.existing {
		rec := task.existing[i]

		if hasTarget(ep.Targets, rec.Value) {
			if rec.TTL == ttl && rec.Enabled {
				b.logger.Debug("Record already up to date",
					zap.String("dnsName", dnsName),
					zap.String("value", rec.Value))
				continue
			}
			rec.TTL = ttl
			rec.Enabled = true
			if err := b.updateDNSRecord(&rec, domainID); err != nil {
				return err
			}
			continue
		}

		// reuse a stale record for a value that is still missing
		if len(remaining) > 0 {
			rec.Value = remaining[0]
			rec.TTL = ttl
			rec.Enabled = true
			remaining = remaining[1:]
			if err := b.updateDNSRecord(&rec, domainID); err != nil {
				return err
			}
			continue
		}

		if err := b.deleteDNSRecord(&rec, domainID); err != nil {
			return err
		}
	}

	for _, value := range remaining {
		if err := b.createDNSRecord(domainID, dnsName, ep.RecordType, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// createDNSRecord creates one record; a duplicate is treated as success.
func (b *Backend) createDNSRecord(domainID int, dnsName, recordType, value string, ttl int) error {
	record := &myrasec.DNSRecord{
		Name:       dnsName,
		Value:      value,
		RecordType: recordType,
		Active:     true,
		Enabled:    true,
		TTL:        ttl,
	}

	_, err := b.apiClient.CreateDNSRecord(record, domainID)
	if err != nil {
		if strings.Contains(err.Error(), "This value is already used") {
			b.logger.Warn("Record already exists, skipping creation",
				zap.String("name", record.Name),
				zap.String("type", record.RecordType),
				zap.String("value", record.Value))
			return nil
		}

		b.logger.Error("Failed to create DNS record",
			zap.Error(err),
			zap.String("name", record.Name),
			zap.String("type", record.RecordType),
			zap.String("value", record.Value))
		return fmt.Errorf("create %s %s: %w", record.RecordType, record.Name, err)
	}

	b.logger.Info("Created DNS record",
		zap.String("name", record.Name),
		zap.String("type", record.RecordType),
		zap.String("value", record.Value),
		zap.Int("ttl", record.TTL))
	return nil
}

func (b *Backend) updateDNSRecord(record *myrasec.DNSRecord, domainID int) error {
	if _, err := b.apiClient.UpdateDNSRecord(record, domainID); err != nil {
		b.logger.Error("Failed to update record",
			zap.String("dnsName", record.Name),
			zap.String("value", record.Value),
			zap.Error(err))
		return fmt.Errorf("update %s %s: %w", record.RecordType, record.Name, err)
	}

	b.logger.Info("Updated record",
		zap.String("dnsName", record.Name),
		zap.String("value", record.Value),
		zap.Int("ttl", record.TTL))
	return nil
}

func (b *Backend) deleteDNSRecord(record *myrasec.DNSRecord, domainID int) error {
	if _, err := b.apiClient.DeleteDNSRecord(record, domainID); err != nil {
		b.logger.Error("Failed to delete DNS record",
			zap.String("dnsName", record.Name),
			zap.String("type", record.RecordType),
			zap.String("value", record.Value),
			zap.Error(err))
		return fmt.Errorf("delete %s %s: %w", record.RecordType, record.Name, err)
	}

	b.logger.Info("Deleted DNS record",
		zap.String("dnsName", record.Name),
		zap.String("type", record.RecordType),
		zap.String("value", record.Value))
	return nil
}

// findMatchingRecords returns all records matching the given dnsName + recordType.
func findMatchingRecords(records []myrasec.DNSRecord, dnsName, recordType string) []myrasec.DNSRecord {
	var matching []myrasec.DNSRecord
	for _, rec := range records {
		if stripTrailingDot(rec.Name) == stripTrailingDot(dnsName) && rec.RecordType == recordType {
			matching = append(matching, rec)
		}
	}
	return matching
}

func containsValue(records []myrasec.DNSRecord, value string) bool {
	for _, rec := range records {
		if rec.Value == value {
			return true
		}
	}
	return false
}

func hasTarget(targets endpoint.Targets, value string) bool {
	for _, t := range targets {
		if t == value {
			return true
		}
	}
	return false
}

// stripTrailingDot removes any final dot in a DNS name.
func stripTrailingDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
