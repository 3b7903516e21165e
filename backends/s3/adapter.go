// Package s3 implements an archive backend over an S3 bucket, used to keep the SD card archive
// off the local disk. Directories are marker objects whose key ends with a slash.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/backends"
	"github.com/ebogdum/archivefs/config"
	"github.com/ebogdum/archivefs/internal/pathutil"
	"github.com/ebogdum/archivefs/metadata"
)

// S3Adapter implements backends.ArchiveBackend for AWS S3
type S3Adapter struct {
	client               s3iface.S3API
	bucketName           string
	prefix               string
	serverSideEncryption string
	acl                  string
	writeOnly            bool
	freeBytes            uint64
	logger               *zap.Logger
}

// Options tunes an S3 archive.
type Options struct {
	Prefix               string
	ServerSideEncryption string
	ACL                  string
	WriteOnly            bool
	FreeBytes            uint64
}

// NewS3Adapter creates a new S3 archive backend from the storage configuration
func NewS3Adapter(cfg config.StorageConfig, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	// Create AWS session
	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		),
	}

	// Set custom endpoint if provided (for MinIO compatibility)
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)              // Required for MinIO
		awsConfig.S3DisableContentMD5Validation = aws.Bool(true) // Disable MD5 for MinIO
		awsConfig.DisableSSL = aws.Bool(strings.HasPrefix(cfg.S3Endpoint, "http://"))
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	// Verify bucket access
	_, err = client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3BucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3BucketName, err)
	}

	return NewS3AdapterWithClient(client, cfg.S3BucketName, Options{
		Prefix:               cfg.S3Prefix,
		ServerSideEncryption: cfg.S3SSE,
		ACL:                  cfg.S3ACL,
		FreeBytes:            cfg.DefaultFreeBytes,
	}, logger), nil
}

// NewS3AdapterWithClient creates an S3 archive backend around an existing client
func NewS3AdapterWithClient(client s3iface.S3API, bucket string, opts Options, logger *zap.Logger) *S3Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimPrefix(opts.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if opts.FreeBytes == 0 {
		opts.FreeBytes = 1024 * 1024 * 1024
	}
	return &S3Adapter{
		client:               client,
		bucketName:           bucket,
		prefix:               prefix,
		serverSideEncryption: opts.ServerSideEncryption,
		acl:                  opts.ACL,
		writeOnly:            opts.WriteOnly,
		freeBytes:            opts.FreeBytes,
		logger:               logger,
	}
}

// WithWriteOnly returns a view of the same bucket that rejects reads and listings
func (a *S3Adapter) WithWriteOnly() *S3Adapter {
	clone := *a
	clone.writeOnly = true
	return &clone
}

func (a *S3Adapter) WriteOnlyView() backends.ArchiveBackend {
	return a.WithWriteOnly()
}

// Name returns the archive kind
func (a *S3Adapter) Name() string {
	return "s3"
}

// FreeBytes reports the configured free space; buckets have no meaningful quota
func (a *S3Adapter) FreeBytes(ctx context.Context) (uint64, error) {
	return a.freeBytes, nil
}

// Close closes any resources used by the S3 adapter
func (a *S3Adapter) Close() error {
	// No resources to close for S3
	return nil
}

// clean validates an archive path and returns it in "/a/b" form
func (a *S3Adapter) clean(path backends.Path) (string, error) {
	if !path.IsText() {
		return "", metadata.ErrInvalidPath
	}
	text, err := path.AsString()
	if err != nil {
		return "", err
	}
	return pathutil.Clean(text)
}

// Locate returns the s3 URI of the object or prefix behind path
func (a *S3Adapter) Locate(path backends.Path) (string, error) {
	cleaned, err := a.clean(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix("s3://"+a.bucketName+"/"+a.pathToKey(cleaned), "/"), nil
}

// pathToKey converts a cleaned archive path to an S3 object key
func (a *S3Adapter) pathToKey(cleaned string) string {
	return a.prefix + strings.TrimPrefix(cleaned, "/")
}

// dirPrefix returns the key prefix shared by everything below a directory
func (a *S3Adapter) dirPrefix(cleaned string) string {
	if pathutil.IsRoot(cleaned) {
		return a.prefix
	}
	return a.pathToKey(cleaned) + "/"
}

func parentOf(cleaned string) string {
	idx := strings.LastIndex(cleaned, "/")
	if idx <= 0 {
		return "/"
	}
	return cleaned[:idx]
}

// objectExists reports whether an object with exactly this key exists
func (a *S3Adapter) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object in S3: %w", err)
	}
	return true, nil
}

// dirExists reports whether a directory exists, either as a marker or implied by its children
func (a *S3Adapter) dirExists(ctx context.Context, cleaned string) (bool, error) {
	if pathutil.IsRoot(cleaned) {
		return true, nil
	}
	result, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucketName),
		Prefix:  aws.String(a.dirPrefix(cleaned)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	return len(result.Contents) > 0, nil
}

// kind reports what lives at a cleaned path
func (a *S3Adapter) kind(ctx context.Context, cleaned string) (isFile, isDir bool, err error) {
	if pathutil.IsRoot(cleaned) {
		return false, true, nil
	}
	isFile, err = a.objectExists(ctx, a.pathToKey(cleaned))
	if err != nil || isFile {
		return isFile, false, err
	}
	isDir, err = a.dirExists(ctx, cleaned)
	return false, isDir, err
}

func (a *S3Adapter) requireParent(ctx context.Context, cleaned string) error {
	ok, err := a.dirExists(ctx, parentOf(cleaned))
	if err != nil {
		return err
	}
	if !ok {
		return metadata.ErrNotFound
	}
	return nil
}

func (a *S3Adapter) putInput(key string, body []byte) *s3.PutObjectInput {
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}

	// Set server-side encryption if configured
	if a.serverSideEncryption != "" {
		putInput.ServerSideEncryption = aws.String(a.serverSideEncryption)
	}

	// Set ACL if configured
	if a.acl != "" {
		putInput.ACL = aws.String(a.acl)
	}

	return putInput
}

func (a *S3Adapter) put(ctx context.Context, key string, body []byte) error {
	if _, err := a.client.PutObjectWithContext(ctx, a.putInput(key, body)); err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}
	return nil
}

func (a *S3Adapter) deleteKey(ctx context.Context, key string) error {
	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (a *S3Adapter) copyKey(ctx context.Context, srcKey, dstKey string) error {
	source := (&url.URL{Path: a.bucketName + "/" + srcKey}).EscapedPath()
	_, err := a.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucketName),
		Key:        aws.String(dstKey),
		CopySource: aws.String(source),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object in S3: %w", err)
	}
	return nil
}

// listKeys returns every key under prefix
func (a *S3Adapter) listKeys(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(prefix),
	}

	var keys []string
	for {
		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}
		for _, object := range result.Contents {
			if object.Key != nil {
				keys = append(keys, *object.Key)
			}
		}
		if result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}
	return keys, nil
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

var (
	_ backends.ArchiveBackend  = (*S3Adapter)(nil)
	_ backends.Locator         = (*S3Adapter)(nil)
	_ backends.WriteOnlyViewer = (*S3Adapter)(nil)
)
