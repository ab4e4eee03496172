package attachment

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Upload(t *testing.T) {
	t.Parallel()

	client := &fakeS3{}
	store := NewS3WithClient(client, S3Options{Bucket: "receipts", Region: "eu-central-1", Prefix: "/orders/"})
	url, err := store.Upload(context.Background(), []byte("pdf"), "r.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://receipts.s3.eu-central-1.amazonaws.com/orders/r.pdf" {
		t.Fatalf("unexpected url %s", url)
	}
	if aws.ToString(client.input.Key) != "orders/r.pdf" || aws.ToString(client.input.ContentType) != "application/pdf" || string(client.body) != "pdf" {
		t.Fatalf("unexpected put input %+v", client.input)
	}
}

func TestS3UploadCustomEndpoint(t *testing.T) {
	t.Parallel()

	store := NewS3WithClient(&fakeS3{}, S3Options{Bucket: "b", Endpoint: "http://minio:9000/"})
	url, err := store.Upload(context.Background(), []byte("x"), "r.jpg", "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "http://minio:9000/b/r.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
}

func TestS3UploadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	store := NewS3WithClient(&fakeS3{err: boom}, S3Options{Bucket: "b"})
	if _, err := store.Upload(context.Background(), []byte("x"), "r.jpg", ""); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
