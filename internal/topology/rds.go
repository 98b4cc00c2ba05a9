package topology

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"go.uber.org/zap"
)

// RDSAPIClient is the subset of the RDS API used by RDSDirectory
type RDSAPIClient interface {
	rds.DescribeDBClustersAPIClient
	rds.DescribeDBInstancesAPIClient
}

// RDSDirectory is a Directory backed by the RDS API.
type RDSDirectory struct {
	client RDSAPIClient
	logger *zap.Logger
}

// NewRDSDirectory creates a Directory using the given static credentials.
func NewRDSDirectory(logger *zap.Logger, accessKey, secretKey, region string) *RDSDirectory {
	client := rds.New(rds.Options{
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		Region:      region,
	})
	return &RDSDirectory{client: client, logger: logger}
}

// ListClusters returns every DB cluster visible to the credentials.
func (r *RDSDirectory) ListClusters(ctx context.Context) ([]Cluster, error) {
	var clusters []Cluster

	p := rds.NewDescribeDBClustersPaginator(r.client, &rds.DescribeDBClustersInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB clusters: %w", err)
		}
		for _, c := range page.DBClusters {
			cluster := Cluster{Endpoint: aws.ToString(c.Endpoint)}
			for _, m := range c.DBClusterMembers {
				cluster.Members = append(cluster.Members, ClusterMember{
					ID:       aws.ToString(m.DBInstanceIdentifier),
					IsWriter: aws.ToBool(m.IsClusterWriter),
				})
			}
			clusters = append(clusters, cluster)
		}
	}

	r.logger.Debug("DB clusters retrieved", zap.Int("count", len(clusters)))
	return clusters, nil
}

// ListMemberEndpoints returns the endpoint address of every DB instance.
func (r *RDSDirectory) ListMemberEndpoints(ctx context.Context) ([]MemberEndpoint, error) {
	var endpoints []MemberEndpoint

	p := rds.NewDescribeDBInstancesPaginator(r.client, &rds.DescribeDBInstancesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB instances: %w", err)
		}
		for _, inst := range page.DBInstances {
			if inst.DBInstanceIdentifier == nil || inst.Endpoint == nil || inst.Endpoint.Address == nil {
				continue
			}
			endpoints = append(endpoints, MemberEndpoint{
				ID:      *inst.DBInstanceIdentifier,
				Address: *inst.Endpoint.Address,
			})
		}
	}

	r.logger.Debug("DB instances retrieved", zap.Int("count", len(endpoints)))
	return endpoints, nil
}
