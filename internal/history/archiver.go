package history

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/pkg/types"
)

// S3ArchiverConfig contains configuration for transcript archival.
type S3ArchiverConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BucketName  string `yaml:"bucket_name"`
	Region      string `yaml:"region"`
	AccessKeyID string `yaml:"access_key_id"` // optional, default credential chain if empty
	SecretKey   string `yaml:"secret_key"`    // optional
	Endpoint    string `yaml:"endpoint"`      // custom endpoint (MinIO etc.)
	PathPrefix  string `yaml:"path_prefix"`   // prefix for object keys
}

// transcript is the archived object layout.
type transcript struct {
	Conversation *types.Conversation `json:"conversation"`
	Messages     []*types.Message    `json:"messages"`
	ArchivedAt   time.Time           `json:"archived_at"`
}

// s3PutAPI is the slice of the S3 client the archiver needs; tests substitute
// a recorder.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver snapshots conversation transcripts to S3 before deletion, so an
// explicit delete never silently destroys the only copy.
type S3Archiver struct {
	config S3ArchiverConfig
	client s3PutAPI
}

// NewS3Archiver creates a new S3 archiver.
func NewS3Archiver(cfg S3ArchiverConfig) (*S3Archiver, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3 archiver: bucket_name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 archiver: load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// newS3ArchiverWithClient is the test constructor.
func newS3ArchiverWithClient(cfg S3ArchiverConfig, client s3PutAPI) *S3Archiver {
	return &S3Archiver{config: cfg, client: client}
}

// ArchiveConversation uploads the transcript as a JSON object keyed by user
// and conversation id.
func (a *S3Archiver) ArchiveConversation(ctx context.Context, conv *types.Conversation, msgs []*types.Message) error {
	body, err := json.Marshal(transcript{
		Conversation: conv,
		Messages:     msgs,
		ArchivedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("s3 archiver: marshal transcript: %w", err)
	}

	key := path.Join(a.config.PathPrefix, "archives", conv.UserID, conv.ID+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 archiver: put object: %w", err)
	}
	return nil
}
