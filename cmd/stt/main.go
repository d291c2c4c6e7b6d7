// Command stt transcribes a local audio file with speaker diarization and language
// identification on AWS Transcribe or Google Speech-to-Text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/config"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/output"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/transcription"
)

const version = "1.0.0"

// listFlag collects repeated or comma-separated values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

type options struct {
	configPath   string
	provider     string
	languages    listFlag
	minSpeakers  int
	maxSpeakers  int
	outputFormat string
	outputFile   string
	timeout      time.Duration
	accessKey    string
	secretKey    string
	region       string
	s3Bucket     string
	gcsBucket    string
	project      string
	credentials  string
	debug        bool
	audioFile    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-version":
			fmt.Fprintf(stdout, "stt %s\n", version)
			return 0
		case "transcribe":
			args = args[1:]
		}
	}

	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !opts.debug {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := transcribe(ctx, cfg, opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags accepts flags before and after the audio file argument.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("stt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: stt [transcribe] [flags] AUDIO_FILE")
		fmt.Fprintln(stderr, "\nTranscribe audio file with speaker diarization and language detection.")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "config/config.yaml", "path to the YAML config file (optional)")
	fs.StringVar(&opts.provider, "provider", "", "recognition provider: aws or google (env STT_PROVIDER)")
	fs.Var(&opts.languages, "languages", "languages to detect, up to 4 (repeat or comma-separate; default he-IL,en-US)")
	fs.IntVar(&opts.minSpeakers, "min-speakers", 0, "minimum number of speakers (default 1)")
	fs.IntVar(&opts.maxSpeakers, "max-speakers", 0, "maximum number of speakers (1-30, default 6)")
	fs.StringVar(&opts.outputFormat, "output-format", output.FormatText, "output format: text, json or detailed")
	fs.StringVar(&opts.outputFile, "output-file", "", "output file path (default: stdout)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "maximum time to wait for the transcription job (default 10m)")
	fs.StringVar(&opts.accessKey, "aws-access-key-id", "", "AWS access key ID (env AWS_ACCESS_KEY_ID)")
	fs.StringVar(&opts.secretKey, "aws-secret-access-key", "", "AWS secret access key (env AWS_SECRET_ACCESS_KEY)")
	fs.StringVar(&opts.region, "aws-region", "", "AWS region (env AWS_DEFAULT_REGION, default us-east-1)")
	fs.StringVar(&opts.s3Bucket, "s3-bucket", "", "S3 bucket for audio uploads; a temporary bucket is created when empty (env STT_CLI_S3_BUCKET)")
	fs.StringVar(&opts.gcsBucket, "gcs-bucket", "", "GCS bucket for audio over 10MB (env STT_GCS_BUCKET)")
	fs.StringVar(&opts.project, "google-project", "", "Google Cloud project (env GOOGLE_CLOUD_PROJECT)")
	fs.StringVar(&opts.credentials, "google-credentials", "", "service account key file (env GOOGLE_APPLICATION_CREDENTIALS)")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	if len(positional) != 1 {
		fs.Usage()
		return nil, errors.New("exactly one AUDIO_FILE argument is required")
	}
	opts.audioFile = positional[0]

	valid := false
	for _, f := range output.Formats {
		if f == opts.outputFormat {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid output format %q (want %s)", opts.outputFormat, strings.Join(output.Formats, ", "))
	}
	return opts, nil
}

// apply lets explicit flags win over file and environment settings.
func (o *options) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider, strings.ToLower(o.provider))
	set(&cfg.AWS.AccessKeyID, o.accessKey)
	set(&cfg.AWS.SecretAccessKey, o.secretKey)
	set(&cfg.AWS.Region, o.region)
	set(&cfg.AWS.Bucket, o.s3Bucket)
	set(&cfg.Google.Bucket, o.gcsBucket)
	set(&cfg.Google.ProjectID, o.project)
	set(&cfg.Google.CredentialsFile, o.credentials)

	if len(o.languages) > 0 {
		cfg.Transcription.Languages = o.languages
	}
	if o.minSpeakers != 0 {
		cfg.Transcription.MinSpeakers = o.minSpeakers
	}
	if o.maxSpeakers != 0 {
		cfg.Transcription.MaxSpeakers = o.maxSpeakers
	}
	if o.timeout != 0 {
		cfg.Transcription.Timeout = o.timeout
	}
	cfg.Debug = cfg.Debug || o.debug
}

func transcribe(ctx context.Context, cfg *config.Config, opts *options, stdout, stderr io.Writer) error {
	req := transcription.RequestFromConfig(cfg)

	orchestrator, err := transcription.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	// fail on bad speaker or language options before touching the file
	if err := req.Validate(orchestrator.Capabilities().Speakers); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "Processing audio file: %s\n", opts.audioFile)
	transcoder := transcription.NewTranscoder(cfg.Transcription.FFmpegPath, "")
	input, cleanup, err := transcription.LoadAudio(ctx, opts.audioFile, orchestrator.Capabilities(), transcoder)
	defer cleanup()
	if err != nil {
		return err
	}

	fmt.Fprintf(stderr, "File size: %.1f MB\n", float64(input.Size())/(1024*1024))
	fmt.Fprintf(stderr, "Starting %s transcription job...\n", orchestrator.Provider())
	fmt.Fprintln(stderr, "This may take several minutes depending on file size...")

	result, err := orchestrator.Transcribe(ctx, input, req)
	if err != nil {
		return err
	}
	for _, adv := range result.Advisories {
		fmt.Fprintf(stderr, "Warning: %s\n", adv)
	}

	rendered, err := output.Render(result, opts.outputFormat)
	if err != nil {
		return err
	}

	if opts.outputFile != "" {
		if err := os.WriteFile(opts.outputFile, []byte(rendered+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(stderr, "Results written to: %s\n", opts.outputFile)
		return nil
	}
	fmt.Fprintln(stdout, rendered)
	return nil
}
