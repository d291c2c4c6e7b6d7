package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

var audioKeyPattern = regexp.MustCompile(`^audio-[0-9a-f]{32}\.mp3$`)

func TestStageInlineSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl) // no calls expected

	s := NewStager(store, "")
	staged, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("tiny"), "wav", 16000), 1024)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !staged.IsInline() || staged.Owned {
		t.Fatalf("expected inline, unowned audio, got %+v", staged)
	}
	if staged.SampleRate != 16000 || staged.Format != "wav" {
		t.Errorf("format/rate not carried: %s/%d", staged.Format, staged.SampleRate)
	}

	s.Release(context.Background(), staged)
	if !staged.Released() {
		t.Error("inline audio should be marked released")
	}
}

func TestStageRemoteIsNotOwned(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl)

	s := NewStager(store, "bucket")
	staged, err := s.Stage(context.Background(), types.NewAudioURI("s3://theirs/a.mp3", "mp3"), 0)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if staged.URI != "s3://theirs/a.mp3" || staged.Owned {
		t.Fatalf("unexpected staged audio %+v", staged)
	}

	// caller-owned audio is never deleted
	s.Release(context.Background(), staged)
}

func TestStageUploadAndReleaseOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl)
	data := []byte("mp3 bytes")

	var key string
	store.EXPECT().Scheme().Return("s3").AnyTimes()
	store.EXPECT().PutObject(gomock.Any(), "my-bucket", gomock.Any(), "audio/mp3", data).
		DoAndReturn(func(_ context.Context, _, k, _ string, _ []byte) error {
			key = k
			return nil
		})

	s := NewStager(store, "my-bucket")
	staged, err := s.Stage(context.Background(), types.NewAudioBytes(data, "mp3", 0), 0)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !audioKeyPattern.MatchString(key) {
		t.Errorf("key %q does not match %s", key, audioKeyPattern)
	}
	if staged.URI != "s3://my-bucket/"+key || !staged.Owned {
		t.Fatalf("unexpected staged audio %+v", staged)
	}

	store.EXPECT().DeleteObject(gomock.Any(), "my-bucket", key).Return(nil).Times(1)
	s.Release(context.Background(), staged)
	s.Release(context.Background(), staged)
}

func TestReleaseSwallowsDeleteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl)

	store.EXPECT().Scheme().Return("gs").AnyTimes()
	store.EXPECT().PutObject(gomock.Any(), "b", gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().DeleteObject(gomock.Any(), "b", gomock.Any()).Return(errors.New("access denied")).Times(1)

	s := NewStager(store, "b")
	staged, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("x"), "mp3", 0), 0)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	s.Release(context.Background(), staged)
	if !staged.Released() {
		t.Error("failed delete should still mark the handle released")
	}
	s.Release(context.Background(), staged)
}

func TestScratchBucketRetriesOnCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl)

	var names []string
	record := func(err error) func(context.Context, string) error {
		return func(_ context.Context, name string) error {
			names = append(names, name)
			return err
		}
	}
	gomock.InOrder(
		store.EXPECT().CreateBucket(gomock.Any(), gomock.Any()).DoAndReturn(record(ErrBucketExists)),
		store.EXPECT().CreateBucket(gomock.Any(), gomock.Any()).DoAndReturn(record(nil)),
	)
	store.EXPECT().Scheme().Return("s3").AnyTimes()
	store.EXPECT().PutObject(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s := NewStager(store, "")
	staged, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("x"), "mp3", 0), 0)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if len(names) != 2 {
		t.Fatalf("expected 2 create attempts, got %v", names)
	}
	if !regexp.MustCompile(`^stt-cli-audio-[0-9a-f]{8}$`).MatchString(names[0]) {
		t.Errorf("first bucket name %q", names[0])
	}
	if !regexp.MustCompile(`^stt-cli-audio-[0-9a-f]{12}$`).MatchString(names[1]) {
		t.Errorf("retry bucket name %q", names[1])
	}
	if s.ScratchBucket() != names[1] || staged.Bucket != names[1] {
		t.Errorf("scratch bucket %q, staged into %q, want %q", s.ScratchBucket(), staged.Bucket, names[1])
	}
}

func TestScratchBucketCreatedOnceUnderConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockObjectStore(ctrl)

	const uploads = 10
	store.EXPECT().CreateBucket(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	store.EXPECT().Scheme().Return("s3").AnyTimes()
	store.EXPECT().PutObject(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(uploads)

	s := NewStager(store, "")

	var wg sync.WaitGroup
	buckets := make(chan string, uploads)
	errs := make(chan error, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			staged, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("x"), "mp3", 0), 0)
			if err != nil {
				errs <- err
				return
			}
			buckets <- staged.Bucket
		}()
	}
	wg.Wait()
	close(buckets)
	close(errs)

	for err := range errs {
		t.Errorf("Stage: %v", err)
	}
	for b := range buckets {
		if b != s.ScratchBucket() {
			t.Errorf("upload went to %q, scratch bucket is %q", b, s.ScratchBucket())
		}
	}
}

func TestStageErrors(t *testing.T) {
	t.Run("no store for large audio", func(t *testing.T) {
		s := NewStager(nil, "")
		_, err := s.Stage(context.Background(), types.NewAudioBytes(make([]byte, 2048), "wav", 0), 1024)
		if err == nil || !strings.Contains(err.Error(), "no object storage") {
			t.Fatalf("expected missing store error, got %v", err)
		}
	})

	t.Run("bucket creation fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockObjectStore(ctrl)
		denied := errors.New("access denied")
		store.EXPECT().CreateBucket(gomock.Any(), gomock.Any()).Return(denied)

		s := NewStager(store, "")
		_, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("x"), "mp3", 0), 0)
		if !errors.Is(err, denied) {
			t.Fatalf("expected wrapped create error, got %v", err)
		}
		if s.ScratchBucket() != "" {
			t.Error("failed creation must not be remembered")
		}
	})

	t.Run("upload fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := NewMockObjectStore(ctrl)
		store.EXPECT().Scheme().Return("s3").AnyTimes()
		store.EXPECT().PutObject(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("timeout"))

		s := NewStager(store, "b")
		if _, err := s.Stage(context.Background(), types.NewAudioBytes([]byte("x"), "mp3", 0), 0); err == nil {
			t.Fatal("expected upload error")
		}
	})
}
