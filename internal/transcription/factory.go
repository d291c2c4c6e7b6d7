package transcription

import (
	"context"
	"fmt"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/config"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/provider"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// NewFromConfig builds the orchestrator for the configured provider.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	var (
		adapter provider.Adapter
		stager  *storage.Stager
		err     error
	)

	switch cfg.Provider {
	case "aws":
		adapter, stager, err = newAWS(ctx, cfg)
	case "google":
		adapter, stager, err = newGoogle(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Transcription provider: %s", adapter.Name())
	return New(adapter, stager,
		WithPollInterval(cfg.Transcription.PollInterval),
		WithMaxTransientErrors(cfg.Transcription.MaxTransientErrors),
		WithCleanupTimeout(cfg.Transcription.CleanupTimeout),
	), nil
}

// RequestFromConfig returns the default request parameters from cfg.
func RequestFromConfig(cfg *config.Config) types.TranscriptionRequest {
	return types.TranscriptionRequest{
		Languages:   append([]string(nil), cfg.Transcription.Languages...),
		MinSpeakers: cfg.Transcription.MinSpeakers,
		MaxSpeakers: cfg.Transcription.MaxSpeakers,
		Timeout:     cfg.Transcription.Timeout,
	}
}

func newAWS(ctx context.Context, cfg *config.Config) (provider.Adapter, *storage.Stager, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.AWS.Region)
	adapter := provider.NewAWSTranscribe(transcribe.NewFromConfig(awsCfg), nil)
	return adapter, storage.NewStager(store, cfg.AWS.Bucket), nil
}

func newGoogle(ctx context.Context, cfg *config.Config) (provider.Adapter, *storage.Stager, error) {
	var clientOpts []option.ClientOption
	if cfg.Google.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Google.CredentialsFile))
	}

	gopts := []provider.GoogleOption{
		provider.WithOperationInterval(cfg.Transcription.PollInterval),
		provider.WithMaxWaitErrors(cfg.Transcription.MaxTransientErrors),
	}
	if cfg.Google.Model != "" {
		gopts = append(gopts, provider.WithModel(cfg.Google.Model))
	}
	adapter, err := provider.NewGoogleSpeech(ctx, clientOpts, gopts...)
	if err != nil {
		return nil, nil, err
	}

	// Without a project or bucket only inline audio can be sent.
	if cfg.Google.ProjectID == "" && cfg.Google.Bucket == "" {
		log.Printf("WARNING: no GCS project or bucket configured; audio over %d bytes will be rejected", adapter.Capabilities().InlineLimit)
		return adapter, storage.NewStager(nil, ""), nil
	}

	store, err := storage.NewGCSStore(ctx, cfg.Google.ProjectID, cfg.Google.BucketLocation, clientOpts...)
	if err != nil {
		return nil, nil, err
	}
	return adapter, storage.NewStager(store, cfg.Google.Bucket), nil
}
