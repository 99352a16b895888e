package s3archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	data, _ := io.ReadAll(input.Body)
	f.body = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func TestUpload(t *testing.T) {
	up := &fakeUploader{}
	a := newArchive(up, "reports", "/optionsbot/")
	day := time.Date(2026, 10, 19, 15, 45, 0, 0, time.UTC)

	key, err := a.Upload(context.Background(), day, "trades.csv", "text/csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "optionsbot/2026/10/19/trades.csv", key)
	assert.Equal(t, "reports", aws.ToString(up.input.Bucket))
	assert.Equal(t, "text/csv", aws.ToString(up.input.ContentType))
	assert.Equal(t, "a,b\n", up.body)
}

func TestUpload_Error(t *testing.T) {
	a := newArchive(&fakeUploader{err: errors.New("access denied")}, "reports", "")
	_, err := a.Upload(context.Background(), time.Now(), "x.csv", "text/csv", strings.NewReader(""))
	assert.ErrorContains(t, err, "access denied")
}

func TestKey_NoPrefix(t *testing.T) {
	a := newArchive(&fakeUploader{}, "b", "")
	assert.Equal(t, "2026/01/02/summary.json", a.Key(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "summary.json"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("minio.local:9000", true))
	assert.Equal(t, "http://minio.local:9000", normaliseEndpoint("minio.local:9000", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
	assert.Equal(t, "https://s3.ap-south-1.amazonaws.com", normaliseEndpoint("s3.ap-south-1.amazonaws.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "ap-south-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Bucket: "b"})
	assert.Error(t, err)
}
