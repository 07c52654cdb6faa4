package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"autobackup/internal/backup"
)

// S3Client is the subset of the S3 API used by S3Vault.
type S3Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures an S3Vault.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint selects an S3-compatible service such as MinIO; path-style
	// addressing is used when it is set.
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base of recorded object URLs. Defaults to s3://bucket.
	PublicURL string
}

// S3Vault stores objects in an S3 bucket under an optional key prefix:
//
//	<bucket>/<prefix>/<fingerprint><ext>
type S3Vault struct {
	name      string
	client    S3Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Vault creates an S3Vault with a client built from opts. Without static
// credentials the default AWS credential chain is used.
func NewS3Vault(ctx context.Context, name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 vault requires s3_bucket to be set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3VaultWithClient(name, client, opts), nil
}

// NewS3VaultWithClient creates an S3Vault around an existing client.
func NewS3VaultWithClient(name string, client S3Client, opts S3Options) *S3Vault {
	publicURL := strings.TrimRight(opts.PublicURL, "/")
	if publicURL == "" {
		publicURL = "s3://" + opts.Bucket
	}
	return &S3Vault{
		name:      name,
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		publicURL: publicURL,
	}
}

// Upload streams the content to the bucket. Large objects are sent as
// multipart uploads by the upload manager.
func (v *S3Vault) Upload(ctx context.Context, req backup.UploadRequest) (*backup.RemoteObject, error) {
	key := v.key(objectName(req.Fingerprint, req.Name))

	metadata := map[string]string{"fingerprint": req.Fingerprint}
	if len(req.Tags) > 0 {
		metadata["tags"] = encodeTagMetadata(req.Tags)
	}

	counter := &countingReader{r: req.Content}
	if _, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     counter,
		Metadata: metadata,
	}); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}

	if counter.n != req.Size {
		// Nothing useful was stored; leave no partial object behind.
		if err := v.Delete(context.WithoutCancel(ctx), key); err != nil {
			return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d (cleanup failed: %v)", req.Size, counter.n, err)
		}
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", req.Size, counter.n)
	}

	return &backup.RemoteObject{
		RemoteID:  key,
		RemoteURL: v.url(key),
		SizeBytes: counter.n,
	}, nil
}

// encodeTagMetadata joins tags with commas. User metadata must be US-ASCII,
// so each tag is query-escaped; url.QueryUnescape reverses it.
func encodeTagMetadata(tags []string) string {
	escaped := make([]string, len(tags))
	for i, t := range tags {
		escaped[i] = url.QueryEscape(t)
	}
	return strings.Join(escaped, ",")
}

// Delete removes an object. S3 treats deleting a missing key as success.
func (v *S3Vault) Delete(ctx context.Context, remoteID string) error {
	if _, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(remoteID),
	}); err != nil {
		return fmt.Errorf("deleting %s: %w", remoteID, err)
	}
	return nil
}

// List returns objects under the vault prefix, in key order.
func (v *S3Vault) List(ctx context.Context, prefix string, maxResults int) ([]*backup.RemoteObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.key(prefix)),
	}
	if maxResults > 0 && maxResults < 1000 {
		input.MaxKeys = aws.Int32(int32(maxResults))
	}

	var out []*backup.RemoteObject
	p := s3.NewListObjectsV2Paginator(v.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, v.remoteObject(obj))
			if maxResults > 0 && len(out) >= maxResults {
				return out, nil
			}
		}
	}
	return out, nil
}

func (v *S3Vault) key(name string) string {
	if v.prefix == "" {
		return name
	}
	return v.prefix + "/" + name
}

func (v *S3Vault) url(key string) string {
	return v.publicURL + "/" + path.Clean(key)
}

func (v *S3Vault) remoteObject(obj types.Object) *backup.RemoteObject {
	key := aws.ToString(obj.Key)
	ro := &backup.RemoteObject{
		RemoteID:  key,
		RemoteURL: v.url(key),
		SizeBytes: aws.ToInt64(obj.Size),
	}
	if obj.LastModified != nil {
		ro.CreatedAt = obj.LastModified.UTC()
	}
	return ro
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Vault implements backup.RemoteStore interface
var _ backup.RemoteStore = (*S3Vault)(nil)
