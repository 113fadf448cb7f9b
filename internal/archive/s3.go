package archive

import (
	"bufio"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal/config"
)

type S3Option func(*S3)

func WithS3Logger(logger *zap.Logger) S3Option {
	return func(s *S3) {
		s.logger = logger
	}
}

// S3 mirrors archived files to an S3 bucket, keyed by the same dated path
// used on disk.
type S3 struct {
	logger   *zap.Logger
	uploader *s3manager.Uploader

	bucket string
	prefix string
}

func NewS3(c config.S3, opts ...S3Option) (*S3, error) {
	s := &S3{
		logger: zap.NewNop(),
		bucket: c.Bucket,
		prefix: c.Prefix,
	}
	for _, opt := range opts {
		opt(s)
	}

	awsConfig := &aws.Config{
		Region:           aws.String(c.Region),
		S3ForcePathStyle: aws.Bool(c.ForcePathStyle),
	}
	if c.Endpoint != "" {
		awsConfig.Endpoint = aws.String(c.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	s.uploader = s3manager.NewUploader(sess)

	return s, nil
}

func (s *S3) Write(ctx context.Context, key string, reader io.Reader) error {
	objPath := path.Join(s.prefix, key)

	s.logger.Debug("uploading archive file",
		zap.String("bucket", s.bucket),
		zap.String("key", objPath),
	)

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objPath),
		Body:   bufio.NewReader(reader),
	})
	return err
}
