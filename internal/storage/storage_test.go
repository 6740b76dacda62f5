package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag/internal/helper"
)

type fakeS3 struct {
	objects       map[string][]byte
	getFailures   int
	getCalls      int
	bucketExists  bool
	createdBucket *s3.CreateBucketInput
	lastPut       *s3.PutObjectInput
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	if f.getCalls <= f.getFailures {
		return nil, errors.New("connection reset")
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketExists {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdBucket = in
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

var fastRetry = helper.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestS3BucketListAndGet(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{
		"dataset/juridicos/a.pdf": []byte("a"),
		"dataset/juridicos/b.pdf": []byte("b"),
		"other/c.pdf":             []byte("c"),
	}, getFailures: 2}
	b := NewS3Bucket(fake, "pdfs", "us-east-1", fastRetry)

	keys, err := b.List(ctx, "dataset/juridicos/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dataset/juridicos/a.pdf", "dataset/juridicos/b.pdf"}, keys)

	data, err := b.Get(ctx, "dataset/juridicos/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
	assert.Equal(t, 3, fake.getCalls)
	assert.Equal(t, "pdfs", b.Name())
}

func TestS3BucketMissingKeyIsNotRetried(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	b := NewS3Bucket(fake, "pdfs", "us-east-1", fastRetry)

	_, err := b.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fake.getCalls)
}

func TestS3BucketPut(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	b := NewS3Bucket(fake, "emb", "us-east-1", fastRetry)

	require.NoError(t, b.Put(context.Background(), "embeddings/chroma_db/manifest.json", []byte("{}"), "application/json"))
	assert.Equal(t, []byte("{}"), fake.objects["embeddings/chroma_db/manifest.json"])
	assert.Equal(t, "application/json", aws.ToString(fake.lastPut.ContentType))
}

func TestS3BucketEnsureBucket(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	b := NewS3Bucket(fake, "emb", "sa-east-1", fastRetry)

	require.NoError(t, b.EnsureBucket(context.Background()))
	require.NotNil(t, fake.createdBucket)
	assert.Equal(t, types.BucketLocationConstraint("sa-east-1"), fake.createdBucket.CreateBucketConfiguration.LocationConstraint)

	fake.createdBucket = nil
	require.NoError(t, b.EnsureBucket(context.Background()))
	assert.Nil(t, fake.createdBucket)
}

func TestLocalDir(t *testing.T) {
	ctx := context.Background()
	d := NewLocalDir(t.TempDir())

	require.NoError(t, d.Put(ctx, "juridicos/a.pdf", []byte("a"), ""))
	require.NoError(t, d.Put(ctx, "juridicos/sub/b.txt", []byte("b"), ""))
	require.NoError(t, d.Put(ctx, "notes.md", []byte("n"), ""))

	keys, err := d.List(ctx, "juridicos/")
	require.NoError(t, err)
	assert.Equal(t, []string{"juridicos/a.pdf", "juridicos/sub/b.txt"}, keys)

	data, err := d.Get(ctx, "juridicos/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	_, err = d.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewLocalDir(d.Root()+"/missing").List(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "embeddings/chroma_db/index.chromem", Join("/embeddings/chroma_db/", "index.chromem"))
	assert.Equal(t, "a/b", Join("", "a", "", "b/"))
	assert.Equal(t, "", Join())
}
