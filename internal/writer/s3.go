package writer

import (
	"context"
	"fmt"
	"io"

	"baqup/internal/config"
	"baqup/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const S3WriterType = "remote"

func init() {
	RegisterWriterFactory(S3WriterType, NewS3Writer)
}

// countingReader counts bytes as the uploader consumes them, since the S3
// manager does not report the upload size.
type countingReader struct {
	reader io.Reader
	count  int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.count += int64(n)
	return n, err
}

// S3Writer stores backups in an S3 (or S3-compatible) bucket.
type S3Writer struct {
	uploader *manager.Uploader
	client   *s3.Client
	bucket   string
}

// NewS3Writer builds the writer from the storage configuration. Static
// credentials and a custom endpoint are optional; without them the
// standard AWS credential chain applies.
func NewS3Writer(cfg config.StorageConfig) (BackupWriter, error) {
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("remote destination requires storage.s3.bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Log.Info("S3 writer initialized",
		zap.String("bucket", cfg.S3.Bucket),
		zap.String("region", awsCfg.Region),
		zap.String("endpoint", cfg.S3.Endpoint),
	)
	return &S3Writer{
		uploader: manager.NewUploader(client),
		client:   client,
		bucket:   cfg.S3.Bucket,
	}, nil
}

func (s3w *S3Writer) Type() string {
	return S3WriterType
}

func (s3w *S3Writer) Write(ctx context.Context, objectName string, reader io.Reader) (string, int64, error) {
	counting := &countingReader{reader: reader}

	result, err := s3w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s3w.bucket),
		Key:    aws.String(objectName),
		Body:   counting,
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload to s3://%s/%s: %w", s3w.bucket, objectName, err)
	}

	logger.Log.Info("Uploaded backup to S3",
		zap.String("location", result.Location),
		zap.Int64("bytesWritten", counting.count),
	)
	return result.Location, counting.count, nil
}

func (s3w *S3Writer) ReadObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	out, err := s3w.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3w.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s3w.bucket, objectName, err)
	}
	return out.Body, nil
}

func (s3w *S3Writer) ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error) {
	var objects []BackupObjectMeta

	paginator := s3.NewListObjectsV2Paginator(s3w.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3w.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s3w.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, BackupObjectMeta{
				Key:          aws.ToString(obj.Key),
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

func (s3w *S3Writer) DeleteObject(ctx context.Context, key string) error {
	_, err := s3w.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3w.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s3w.bucket, key, err)
	}
	logger.Log.Info("Deleted S3 backup", zap.String("bucket", s3w.bucket), zap.String("key", key))
	return nil
}
