package predictor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	payload, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(payload))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	payload, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = payload
	return &s3.PutObjectOutput{}, nil
}

func TestS3SourceRoundTrip(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	payload, err := FileSource{Path: writeArtifact(t, 42)}.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := UploadArtifact(context.Background(), client, "models", "chd/latest.json", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	source := &S3Source{Client: client, Bucket: "models", Key: "chd/latest.json"}
	if source.String() != "s3://models/chd/latest.json" {
		t.Fatalf("unexpected source name %q", source.String())
	}
	p, err := New(Config{}, source, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, _ := p.Info()
	if info.Source != "s3://models/chd/latest.json" {
		t.Fatalf("unexpected info source %q", info.Source)
	}
}

func TestS3SourceMissingKey(t *testing.T) {
	source := &S3Source{Client: &fakeS3{objects: map[string][]byte{}}, Bucket: "models", Key: "none.json"}
	_, err := source.Fetch(context.Background())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}
