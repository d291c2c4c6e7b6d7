package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// DefaultScratchPrefix names buckets the stager creates on its own.
const DefaultScratchPrefix = "stt-cli-audio"

// StagedAudio is a provider-addressable copy of the input audio.
// Owned audio was created by the stager and is deleted by Release exactly once.
type StagedAudio struct {
	URI        string
	Bucket     string
	Key        string
	Inline     []byte
	Format     string
	SampleRate int
	Owned      bool

	mu       sync.Mutex
	released bool
}

// IsInline reports whether the audio travels inside the recognition request.
func (s *StagedAudio) IsInline() bool {
	return len(s.Inline) > 0
}

// Released reports whether Release already ran for this handle.
func (s *StagedAudio) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Stager uploads audio to object storage and deletes what it uploaded.
// A Stager is safe for concurrent use; the lazily created scratch bucket is shared.
type Stager struct {
	store  ObjectStore
	bucket string
	prefix string

	mu      sync.Mutex
	scratch string
}

// NewStager creates a stager. When bucket is empty a scratch bucket is created on first upload
// and reused for the stager's lifetime. store may be nil when only inline audio is staged.
func NewStager(store ObjectStore, bucket string) *Stager {
	return &Stager{
		store:  store,
		bucket: bucket,
		prefix: DefaultScratchPrefix,
	}
}

// Stage produces a location for input. Remote input is wrapped without copying; byte input no
// larger than inlineLimit is kept inline; anything else is uploaded under a random key.
func (s *Stager) Stage(ctx context.Context, input types.AudioInput, inlineLimit int) (*StagedAudio, error) {
	if input.IsRemote() {
		return &StagedAudio{
			URI:        input.URI(),
			Format:     input.Format(),
			SampleRate: input.SampleRate(),
			Owned:      false,
		}, nil
	}

	if inlineLimit > 0 && input.Size() <= inlineLimit {
		return &StagedAudio{
			Inline:     input.Data(),
			Format:     input.Format(),
			SampleRate: input.SampleRate(),
			Owned:      false,
		}, nil
	}

	if s.store == nil {
		return nil, fmt.Errorf("audio is %d bytes and no object storage is configured for staging", input.Size())
	}

	bucket, err := s.bucketFor(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("audio-%s.%s", randomHex(32), input.Format())
	if err := s.store.PutObject(ctx, bucket, key, "audio/"+input.Format(), input.Data()); err != nil {
		return nil, fmt.Errorf("failed to upload audio to %s://%s: %w", s.store.Scheme(), bucket, err)
	}

	uri := fmt.Sprintf("%s://%s/%s", s.store.Scheme(), bucket, key)
	log.Printf("[stager] Uploaded %d bytes to %s", input.Size(), uri)

	return &StagedAudio{
		URI:        uri,
		Bucket:     bucket,
		Key:        key,
		Format:     input.Format(),
		SampleRate: input.SampleRate(),
		Owned:      true,
	}, nil
}

// Release deletes owned audio. It never fails: deletion errors are logged and the handle is
// marked released regardless, so a second call is a no-op.
func (s *Stager) Release(ctx context.Context, staged *StagedAudio) {
	if staged == nil {
		return
	}

	staged.mu.Lock()
	defer staged.mu.Unlock()

	if staged.released {
		return
	}
	staged.released = true

	if !staged.Owned || s.store == nil {
		return
	}

	if err := s.store.DeleteObject(ctx, staged.Bucket, staged.Key); err != nil {
		log.Printf("[stager] WARNING: failed to cleanup %s: %v", staged.URI, err)
		return
	}
	log.Printf("[stager] Cleaned up %s", staged.URI)
}

// ScratchBucket returns the scratch bucket name, empty until one has been created.
func (s *Stager) ScratchBucket() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scratch
}

// bucketFor returns the configured bucket, or lazily creates the scratch bucket.
// A name collision is retried once with a longer random suffix.
func (s *Stager) bucketFor(ctx context.Context) (string, error) {
	if s.bucket != "" {
		return s.bucket, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scratch != "" {
		return s.scratch, nil
	}

	name := fmt.Sprintf("%s-%s", s.prefix, randomHex(8))
	err := s.store.CreateBucket(ctx, name)
	if errors.Is(err, ErrBucketExists) {
		name = fmt.Sprintf("%s-%s", s.prefix, randomHex(12))
		log.Printf("[stager] Bucket name taken, retrying with %s", name)
		err = s.store.CreateBucket(ctx, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create bucket: %w", err)
	}

	s.scratch = name
	log.Printf("[stager] Created scratch bucket: %s", name)
	return name, nil
}

func randomHex(n int) string {
	h := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}
