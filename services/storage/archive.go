package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archiver keeps a copy of generated reports off the host.
type Archiver interface {
	Upload(ctx context.Context, key, localPath string) (string, error)
}

// ArchiveConfig holds configuration for an S3-compatible bucket.
type ArchiveConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// Enabled reports whether enough is configured to upload.
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != "" && c.Region != ""
}

// S3Archiver uploads to any S3-compatible store.
type S3Archiver struct {
	client   s3iface.S3API
	bucket   string
	endpoint string
}

func NewS3Archiver(config ArchiveConfig) (*S3Archiver, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}

	return NewS3ArchiverWithClient(s3.New(sess), config.Bucket, config.Endpoint), nil
}

// NewS3ArchiverWithClient is used by tests to supply a stub client.
func NewS3ArchiverWithClient(client s3iface.S3API, bucket, endpoint string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, endpoint: endpoint}
}

// Upload stores the file at localPath under key and returns its URL.
func (a *S3Archiver) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if a.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.endpoint, "/"), a.bucket, key), nil
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// ReportKey is the object key for a subject's report.
func ReportKey(subjectCode, localPath string) string {
	return path.Join("reports", subjectCode, filepath.Base(localPath))
}

func contentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return xlsxContentType
	}
	return "application/octet-stream"
}
