package delivery

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

// s3Getter is the slice of the S3 API the fetcher uses.
type s3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AttachmentFetcher pulls rendered invoice PDFs out of S3. A fetch
// failure is non-fatal; the send proceeds without the attachment.
type AttachmentFetcher struct {
	client s3Getter
	bucket string
}

// NewAttachmentFetcher initializes the S3 client from static credentials.
func NewAttachmentFetcher(accessKey, secretKey, region, bucket string) (*AttachmentFetcher, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AttachmentFetcher{client: s3.NewFromConfig(awsCfg), bucket: bucket}, nil
}

// Fetch downloads the document at key. Returns nil (no attachment, no
// error) when the fetch fails, logging why.
func (f *AttachmentFetcher) Fetch(ctx context.Context, key string) *Attachment {
	if f == nil || f.client == nil || key == "" {
		return nil
	}

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		logger.Warn("attachment fetch failed, sending without it",
			"key", key, "error", err.Error())
		return nil
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		logger.Warn("attachment read failed, sending without it",
			"key", key, "error", err.Error())
		return nil
	}

	contentType := aws.ToString(result.ContentType)
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &Attachment{
		Filename:    path.Base(key),
		ContentType: contentType,
		Data:        data,
	}
}
