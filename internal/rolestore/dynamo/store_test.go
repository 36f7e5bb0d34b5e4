package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

// fakeAPI keeps items per table and pages scans one item at a time.
type fakeAPI struct {
	tables  map[string][]map[string]types.AttributeValue
	scanErr error
	scans   int
	lastQry *dynamodb.QueryInput
	creates []string
}

func newFakeAPI(tables ...string) *fakeAPI {
	f := &fakeAPI{tables: map[string][]map[string]types.AttributeValue{}}
	for _, t := range tables {
		f.tables[t] = nil
	}
	return f
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	items := f.tables[aws.ToString(in.TableName)]
	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey["record_id"].(*types.AttributeValueMemberS).Value
		for i, it := range items {
			if it["record_id"].(*types.AttributeValueMemberS).Value == last {
				start = i + 1
			}
		}
	}
	if start >= len(items) {
		return &dynamodb.ScanOutput{}, nil
	}
	out := &dynamodb.ScanOutput{Items: items[start : start+1]}
	if start+1 < len(items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"record_id": items[start]["record_id"]}
	}
	return out, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQry = in
	var want string
	for _, v := range in.ExpressionAttributeValues {
		want = v.(*types.AttributeValueMemberS).Value
	}
	var out []map[string]types.AttributeValue
	for _, it := range f.tables[aws.ToString(in.TableName)] {
		if e, ok := it["email"].(*types.AttributeValueMemberS); ok && e.Value == want {
			out = append(out, it)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	table := aws.ToString(in.TableName)
	id := in.Item["record_id"].(*types.AttributeValueMemberS).Value
	items := f.tables[table]
	for i, it := range items {
		if it["record_id"].(*types.AttributeValueMemberS).Value == id {
			items[i] = in.Item
			return &dynamodb.PutItemOutput{}, nil
		}
	}
	f.tables[table] = append(items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if _, ok := f.tables[aws.ToString(in.TableName)]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeAPI) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	name := aws.ToString(in.TableName)
	f.creates = append(f.creates, name)
	f.tables[name] = nil
	return &dynamodb.CreateTableOutput{}, nil
}

func TestSuppliersFollowsPages(t *testing.T) {
	api := newFakeAPI(DefaultSupplierTable, DefaultAdminTable)
	s := New(api, "", "")
	ctx := context.Background()

	require.NoError(t, s.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k1", Email: "s@x.com", Name: "Acme"}))
	require.NoError(t, s.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k2", Email: "b@x.com"}))
	require.NoError(t, s.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k3", Email: "c@x.com"}))

	sup, err := s.Suppliers(ctx)
	require.NoError(t, err)
	require.Len(t, sup, 3)
	assert.Equal(t, 3, api.scans)
	assert.Equal(t, roles.SupplierRecord{RecordID: "k1", Email: "s@x.com", Name: "Acme"}, sup[0])
}

func TestSuppliersEmptyTable(t *testing.T) {
	s := New(newFakeAPI(DefaultSupplierTable), "", "")
	sup, err := s.Suppliers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sup)
	assert.Empty(t, sup)
}

func TestSuppliersScanError(t *testing.T) {
	api := newFakeAPI(DefaultSupplierTable)
	api.scanErr = errors.New("throttled")
	_, err := New(api, "", "").Suppliers(context.Background())
	assert.ErrorContains(t, err, "throttled")
}

func TestAdminsByEmailQueriesIndex(t *testing.T) {
	api := newFakeAPI(DefaultAdminTable)
	s := New(api, "", "")
	ctx := context.Background()

	require.NoError(t, s.PutAdmin(ctx, roles.AdminRecord{RecordID: "a2", Email: "admin@x.com", Permissions: []string{"users:read"}}))
	require.NoError(t, s.PutAdmin(ctx, roles.AdminRecord{RecordID: "a1", Email: "admin@x.com"}))
	require.NoError(t, s.PutAdmin(ctx, roles.AdminRecord{RecordID: "a3", Email: "Admin@x.com"}))

	admins, err := s.AdminsByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "a1", admins[0].RecordID)
	assert.Equal(t, []string{"users:read"}, admins[1].Permissions)

	require.NotNil(t, api.lastQry)
	assert.Equal(t, EmailIndex, aws.ToString(api.lastQry.IndexName))
	assert.NotEmpty(t, aws.ToString(api.lastQry.KeyConditionExpression))
}

func TestPutRequiresRecordID(t *testing.T) {
	s := New(newFakeAPI(), "", "")
	assert.Error(t, s.PutSupplier(context.Background(), roles.SupplierRecord{Email: "x@x.com"}))
	assert.Error(t, s.PutAdmin(context.Background(), roles.AdminRecord{Email: "x@x.com"}))
}

func TestPingAndEnsureTables(t *testing.T) {
	api := newFakeAPI()
	s := New(api, "sup", "adm")
	ctx := context.Background()

	assert.Error(t, s.Ping(ctx))

	require.NoError(t, s.EnsureTables(ctx, time.Second))
	assert.Equal(t, []string{"sup", "adm"}, api.creates)
	assert.NoError(t, s.Ping(ctx))

	// existing tables are left alone
	require.NoError(t, s.EnsureTables(ctx, time.Second))
	assert.Len(t, api.creates, 2)
}
