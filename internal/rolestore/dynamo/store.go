// Package dynamo is a DynamoDB role store. Suppliers live in one table keyed by record_id
// and are read with a full scan; admins live in a second table with a global secondary
// index on email.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

const (
	DefaultSupplierTable = "role_suppliers"
	DefaultAdminTable    = "role_admins"
	EmailIndex           = "email-index"
)

// API is the subset of *dynamodb.Client the store calls.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type Store struct {
	api           API
	supplierTable string
	adminTable    string
}

func New(api API, supplierTable, adminTable string) *Store {
	if supplierTable == "" {
		supplierTable = DefaultSupplierTable
	}
	if adminTable == "" {
		adminTable = DefaultAdminTable
	}
	return &Store{api: api, supplierTable: supplierTable, adminTable: adminTable}
}

// Options configures Open.
type Options struct {
	Region          string
	Endpoint        string // e.g. http://localhost:8000 for DynamoDB Local
	AccessKeyID     string
	SecretAccessKey string
	SupplierTable   string
	AdminTable      string
}

// Open loads the default AWS config chain, overridden by any static keys or endpoint set in opts.
func Open(ctx context.Context, opts Options) (*Store, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return New(client, opts.SupplierTable, opts.AdminTable), nil
}

func (s *Store) Name() string { return "dynamodb" }

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.supplierTable)})
	return err
}

// Suppliers scans the whole supplier table. Order is DynamoDB scan order.
func (s *Store) Suppliers(ctx context.Context) ([]roles.SupplierRecord, error) {
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:      aws.String(s.supplierTable),
		ConsistentRead: aws.Bool(true),
	})

	out := []roles.SupplierRecord{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan %s: %w", s.supplierTable, err)
		}
		var batch []roles.SupplierRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("dynamo: decode suppliers: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Store) AdminsByEmail(ctx context.Context, email string) ([]roles.AdminRecord, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("email").Equal(expression.Value(email))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo: build admin query: %w", err)
	}

	p := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:                 aws.String(s.adminTable),
		IndexName:                 aws.String(EmailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var out []roles.AdminRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", s.adminTable, err)
		}
		var batch []roles.AdminRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("dynamo: decode admins: %w", err)
		}
		out = append(out, batch...)
	}
	sort.Slice(out, func(i, j int) bool { return roles.KeyLess(out[i].RecordID, out[j].RecordID) })
	return out, nil
}

func (s *Store) PutSupplier(ctx context.Context, rec roles.SupplierRecord) error {
	if rec.RecordID == "" {
		return errors.New("dynamo: supplier record id required")
	}
	return s.put(ctx, s.supplierTable, rec)
}

func (s *Store) PutAdmin(ctx context.Context, rec roles.AdminRecord) error {
	if rec.RecordID == "" {
		return errors.New("dynamo: admin record id required")
	}
	return s.put(ctx, s.adminTable, rec)
}

func (s *Store) put(ctx context.Context, table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("dynamo: encode item: %w", err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(table), Item: item}); err != nil {
		return fmt.Errorf("dynamo: put %s: %w", table, err)
	}
	return nil
}

// EnsureTables creates both tables when they do not exist and waits for them to become active.
func (s *Store) EnsureTables(ctx context.Context, wait time.Duration) error {
	if err := s.ensureTable(ctx, s.supplierTable, nil, wait); err != nil {
		return err
	}
	gsi := []types.GlobalSecondaryIndex{{
		IndexName:  aws.String(EmailIndex),
		KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String("email"), KeyType: types.KeyTypeHash}},
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}}
	return s.ensureTable(ctx, s.adminTable, gsi, wait)
}

func (s *Store) ensureTable(ctx context.Context, table string, gsi []types.GlobalSecondaryIndex, wait time.Duration) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	if !isResourceNotFound(err) {
		return fmt.Errorf("dynamo: describe %s: %w", table, err)
	}

	attrs := []types.AttributeDefinition{{AttributeName: aws.String("record_id"), AttributeType: types.ScalarAttributeTypeS}}
	if len(gsi) > 0 {
		attrs = append(attrs, types.AttributeDefinition{AttributeName: aws.String("email"), AttributeType: types.ScalarAttributeTypeS})
	}
	slog.Info("creating dynamodb table", "table", table)
	_, err = s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:              aws.String(table),
		AttributeDefinitions:   attrs,
		KeySchema:              []types.KeySchemaElement{{AttributeName: aws.String("record_id"), KeyType: types.KeyTypeHash}},
		GlobalSecondaryIndexes: gsi,
		BillingMode:            types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("dynamo: create %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, wait); err != nil {
		return fmt.Errorf("dynamo: wait for %s: %w", table, err)
	}
	return nil
}

func isResourceNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}
