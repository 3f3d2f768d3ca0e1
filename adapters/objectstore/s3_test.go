package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/internal/errors"
)

// mockS3 serves one bucket from memory, honouring Prefix, StartAfter and
// MaxKeys across pages.
type mockS3 struct {
	s3iface.S3API
	bucket  string
	objects map[string][]byte
	created time.Time
	inputs  []*s3.ListObjectsV2Input
}

func newMockS3(bucket string) *mockS3 {
	return &mockS3{
		bucket:  bucket,
		objects: map[string][]byte{},
		created: time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	m.inputs = append(m.inputs, in)
	if aws.StringValue(in.Bucket) != m.bucket {
		return fmt.Errorf("bucket '%s' does not exist", aws.StringValue(in.Bucket))
	}

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) && key > aws.StringValue(in.StartAfter) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	pageSize := int(aws.Int64Value(in.MaxKeys))
	for start := 0; start < len(keys) || start == 0; start += pageSize {
		end := start + pageSize
		if end > len(keys) {
			end = len(keys)
		}
		out := &s3.ListObjectsV2Output{}
		for i, key := range keys[start:end] {
			out.Contents = append(out.Contents, &s3.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(int64(len(m.objects[key]))),
				LastModified: aws.Time(m.created.Add(time.Duration(start+i) * time.Hour)),
			})
		}
		if !fn(out, end >= len(keys)) || end >= len(keys) {
			break
		}
	}
	return nil
}

func (m *mockS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, fmt.Errorf("key '%s' does not exist in bucket '%s'", aws.StringValue(in.Key), m.bucket)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestListStartsAfterCursor(t *testing.T) {
	mock := newMockS3("usage")
	mock.objects["reports/usage-csv/0001.csv.gz"] = []byte("a")
	mock.objects["reports/usage-csv/0002.csv.gz"] = []byte("bb")
	mock.objects["reports/usage-csv/0003.csv.gz"] = []byte("ccc")
	mock.objects["reports/cost-csv/0001.csv.gz"] = []byte("x")
	mock.objects["reports/usage-csv/"] = nil

	store := NewWithClient(mock, "usage", "reports/usage-csv/", nil)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "reports/usage-csv/0001.csv.gz", all[0].Name)
	assert.Equal(t, int64(1), all[0].Size)
	assert.False(t, all[0].CreatedAt.IsZero())
	assert.Nil(t, mock.inputs[0].StartAfter)

	after, err := store.List(context.Background(), "reports/usage-csv/0001.csv.gz")
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "reports/usage-csv/0002.csv.gz", after[0].Name)
	assert.Equal(t, "reports/usage-csv/0001.csv.gz", aws.StringValue(mock.inputs[1].StartAfter))
}

func TestListReadsEveryPage(t *testing.T) {
	mock := newMockS3("usage")
	for i := 0; i < maxKeys+5; i++ {
		mock.objects[fmt.Sprintf("reports/usage-csv/%05d.csv.gz", i)] = []byte("x")
	}

	objects, err := NewWithClient(mock, "usage", "reports/usage-csv/", nil).List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, objects, maxKeys+5)
	assert.True(t, sort.SliceIsSorted(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name }))
}

func TestListError(t *testing.T) {
	_, err := NewWithClient(newMockS3("usage"), "missing", "", nil).List(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeTransfer))
}

func TestGet(t *testing.T) {
	mock := newMockS3("usage")
	mock.objects["reports/usage-csv/0001.csv.gz"] = []byte("payload")
	store := NewWithClient(mock, "usage", "reports/usage-csv/", nil)

	body, err := store.Get(context.Background(), "reports/usage-csv/0001.csv.gz")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = store.Get(context.Background(), "reports/usage-csv/nope.csv.gz")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeTransfer))
}

func TestResolvedEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit endpoint wins", Config{Endpoint: "http://localhost:9000", Namespace: "acme", Region: "uk-london-1"}, "http://localhost:9000"},
		{"derived from namespace", Config{Namespace: "acme", Region: "uk-london-1"}, "https://acme.compat.objectstorage.uk-london-1.oraclecloud.com"},
		{"no namespace", Config{Region: "uk-london-1"}, ""},
		{"no region", Config{Namespace: "acme"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolvedEndpoint())
		})
	}
}

func TestNewUsesNamespaceEndpoint(t *testing.T) {
	store, err := New(Config{
		Namespace:       "acme",
		Region:          "uk-london-1",
		Bucket:          "usage",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, nil)
	require.NoError(t, err)

	client, ok := store.s3.(*s3.S3)
	require.True(t, ok)
	assert.Equal(t, "https://acme.compat.objectstorage.uk-london-1.oraclecloud.com", client.Endpoint)
}
