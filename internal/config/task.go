package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

// Configuration keys. They double as JSON field names and CLI flag names.
const (
	KeyR53Access   = "r53access"
	KeyR53Secret   = "r53secret"
	KeyR53ZoneID   = "r53zoneid"
	KeyR53Domain   = "r53domain"
	KeyR53ReadPre  = "r53readpre"
	KeyR53WritePre = "r53writepre"
	KeyRDSAccess   = "rdsaccess"
	KeyRDSSecret   = "rdssecret"
	KeyRDSRegion   = "rdsregion"
	KeyRDSCluster  = "rdscluster"
	KeyLookupHost  = "lookuphost"
	KeyLookupUser  = "lookupuser"
	KeyNoSyncWait  = "nosyncwait"
	KeyTimeToLive  = "timetolive"
	KeyDNSProvider = "dnsprovider"
)

const (
	// DefaultTTL is used when a task sets no TTL or a non-integer one.
	DefaultTTL int64 = 300

	// DefaultProvider is the DNS backend used when a task does not name one.
	DefaultProvider = "route53"
)

var requiredKeys = []string{
	KeyR53Access, KeyR53Secret, KeyR53ZoneID, KeyR53Domain, KeyR53ReadPre, KeyR53WritePre,
	KeyRDSAccess, KeyRDSSecret, KeyRDSRegion, KeyRDSCluster, KeyLookupHost, KeyLookupUser,
}

// ErrMissingField is returned when a task lacks a required field
var ErrMissingField = errors.ErrMissingField

// ErrUnknownProvider is returned when a task names an unregistered DNS provider
var ErrUnknownProvider = errors.ErrUnknownProvider

// Task is one cluster-to-DNS reconciliation unit. It is validated once after
// loading and treated as read-only afterwards.
type Task struct {
	// Source names where the task came from (file path or "flags").
	Source string

	Cluster   string
	RDSAccess string
	RDSSecret string
	RDSRegion string

	Provider     string
	ZoneID       string
	DNSAccess    string
	DNSSecret    string
	Domain       string
	ReaderPrefix string
	WriterPrefix string
	TTL          int64
	NoSyncWait   bool

	LookupHost string
	LookupUser string
}

// FromViper builds a Task from the keys held by v.
func FromViper(v *viper.Viper, source string) Task {
	ttl := parseTTL(v.Get(KeyTimeToLive))

	provider := strings.ToLower(strings.TrimSpace(v.GetString(KeyDNSProvider)))
	if provider == "" {
		provider = DefaultProvider
	}

	return Task{
		Source:       source,
		Cluster:      v.GetString(KeyRDSCluster),
		RDSAccess:    v.GetString(KeyRDSAccess),
		RDSSecret:    v.GetString(KeyRDSSecret),
		RDSRegion:    v.GetString(KeyRDSRegion),
		Provider:     provider,
		ZoneID:       v.GetString(KeyR53ZoneID),
		DNSAccess:    v.GetString(KeyR53Access),
		DNSSecret:    v.GetString(KeyR53Secret),
		Domain:       v.GetString(KeyR53Domain),
		ReaderPrefix: v.GetString(KeyR53ReadPre),
		WriterPrefix: v.GetString(KeyR53WritePre),
		TTL:          ttl,
		NoSyncWait:   v.GetBool(KeyNoSyncWait),
		LookupHost:   v.GetString(KeyLookupHost),
		LookupUser:   v.GetString(KeyLookupUser),
	}
}

// parseTTL accepts integer values only. Fractions, booleans, non-numeric
// strings and values below 1 yield DefaultTTL.
func parseTTL(raw any) int64 {
	var ttl int64
	switch val := raw.(type) {
	case int:
		ttl = int64(val)
	case int32:
		ttl = int64(val)
	case int64:
		ttl = val
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 {
			return DefaultTTL
		}
		ttl = int64(val)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return DefaultTTL
		}
		ttl = n
	default:
		return DefaultTTL
	}
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func (t Task) field(key string) string {
	switch key {
	case KeyR53Access:
		return t.DNSAccess
	case KeyR53Secret:
		return t.DNSSecret
	case KeyR53ZoneID:
		return t.ZoneID
	case KeyR53Domain:
		return t.Domain
	case KeyR53ReadPre:
		return t.ReaderPrefix
	case KeyR53WritePre:
		return t.WriterPrefix
	case KeyRDSAccess:
		return t.RDSAccess
	case KeyRDSSecret:
		return t.RDSSecret
	case KeyRDSRegion:
		return t.RDSRegion
	case KeyRDSCluster:
		return t.Cluster
	case KeyLookupHost:
		return t.LookupHost
	case KeyLookupUser:
		return t.LookupUser
	}
	return ""
}

// Validate checks that every required field is present. All problems are
// reported together, one error per missing field.
func (t Task) Validate() error {
	var err error
	for _, key := range requiredKeys {
		if strings.TrimSpace(t.field(key)) == "" {
			err = multierr.Append(err, fmt.Errorf("%s: --%s: %w", t.Source, key, ErrMissingField))
		}
	}
	return err
}

// ValidateAll validates every task and checks its provider against known.
// A nil known skips the provider check.
func ValidateAll(tasks []Task, known func(string) bool) error {
	var err error
	for _, t := range tasks {
		err = multierr.Append(err, t.Validate())
		if known != nil && !known(t.Provider) {
			err = multierr.Append(err, fmt.Errorf("%s: %q: %w", t.Source, t.Provider, ErrUnknownProvider))
		}
	}
	return err
}
