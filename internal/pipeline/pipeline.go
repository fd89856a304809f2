// Package pipeline runs one art submission through staging, blob upload,
// record persistence and subscriber notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"artpost/internal/domain"
	"artpost/internal/metrics"
	"artpost/internal/storage"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageReceive         Stage = "receive"
	StageStage           Stage = "stage"
	StageUpload          Stage = "upload"
	StagePersist         Stage = "persist"
	StageReadSubscribers Stage = "read_subscribers"
)

// StageError reports the step at which a run stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsClientError reports whether err was caused by the submission itself.
func IsClientError(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == StageReceive
}

// Dispatcher fans a payload out to a snapshot of subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, snapshot domain.Snapshot, payload domain.NotificationPayload) []domain.DeliveryOutcome
}

// Config tunes a Pipeline.
type Config struct {
	StagingDir string
	Payload    domain.NotificationPayload
	// Timeouts for each external call. Zero disables the bound.
	UploadTimeout time.Duration
	StoreTimeout  time.Duration
	// StrictSubscriberRead turns a failed subscriber read into a failed run
	// even though the record has been written.
	StrictSubscriberRead bool
}

// Result describes a successful run.
type Result struct {
	RecordID             string
	CallerID             string
	ImageURL             string
	Outcomes             []domain.DeliveryOutcome
	NotificationsSkipped bool
}

// Pipeline composes the blob store, metadata repository and dispatcher.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	blobs      domain.BlobStore
	records    domain.ArtRepository
	subs       domain.SubscriptionRepository
	dispatcher Dispatcher
	cfg        Config
	logger     zerolog.Logger
	metrics    metrics.Submissions
	newID      func() string
	now        func() time.Time
}

// New builds a Pipeline over the given blob store, repository and dispatcher.
func New(blobs domain.BlobStore, repo domain.MetadataRepository, dispatcher Dispatcher, cfg Config, logger zerolog.Logger, m metrics.Submissions) *Pipeline {
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Pipeline{
		blobs:      blobs,
		records:    repo,
		subs:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the pipeline for one submission. Steps run strictly in
// order; a record is only written after its image upload succeeded.
func (p *Pipeline) Run(ctx context.Context, sub domain.Submission) (Result, error) {
	log := p.logger.With().Str("caller_id", sub.Field(domain.FieldID)).Logger()

	if sub.Image == nil {
		p.metrics.IncSubmission("invalid")
		return Result{}, &StageError{Stage: StageReceive, Err: fmt.Errorf("%w: missing %s", domain.ErrInvalidSubmission, domain.FieldImage)}
	}

	staged, err := p.stage(sub)
	if err != nil {
		log.Error().Err(err).Msg("staging upload failed")
		p.metrics.IncSubmission("stage_failed")
		return Result{}, &StageError{Stage: StageStage, Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(filepath.Dir(staged)); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", staged).Msg("remove staged file")
		}
	}()

	token := p.newID()
	imageURL, err := p.upload(ctx, staged, sub.ContentType, token)
	if err != nil {
		log.Error().Err(err).Msg("blob upload failed")
		p.metrics.IncSubmission("upload_failed")
		return Result{}, &StageError{Stage: StageUpload, Err: fmt.Errorf("%w: %w", domain.ErrUpload, err)}
	}

	id := p.newID()
	record := domain.ArtRecord{
		ID:          id,
		CallerID:    normalize(sub.Field(domain.FieldID)),
		ArtName:     normalize(sub.Field(domain.FieldArtName)),
		ArtistName:  normalize(sub.Field(domain.FieldArtistName)),
		Description: normalize(sub.Field(domain.FieldDescription)),
		ImageURL:    imageURL,
		CreatedAt:   p.now(),
	}
	log = log.With().Str("record_id", id).Logger()

	if err := p.persist(ctx, id, record); err != nil {
		log.Error().Err(err).Str("orphaned_blob", imageURL).Msg("record write failed")
		p.metrics.IncSubmission("persist_failed")
		return Result{}, &StageError{Stage: StagePersist, Err: fmt.Errorf("%w: %w", domain.ErrPersist, err)}
	}

	result := Result{RecordID: id, CallerID: record.CallerID, ImageURL: imageURL}

	snapshot, err := p.readSubscribers(ctx)
	if err != nil {
		if p.cfg.StrictSubscriberRead {
			log.Error().Err(err).Msg("subscriber read failed")
			p.metrics.IncSubmission("read_failed")
			return Result{}, &StageError{Stage: StageReadSubscribers, Err: fmt.Errorf("%w: %w", domain.ErrSubscriberRead, err)}
		}
		log.Error().Err(err).Msg("subscriber read failed, notifications skipped")
		p.metrics.IncSubmission("stored_without_notify")
		result.NotificationsSkipped = true
		result.Outcomes = []domain.DeliveryOutcome{}
		return result, nil
	}

	// Deliveries settle even if the submitter disconnects.
	result.Outcomes = p.dispatcher.Dispatch(context.WithoutCancel(ctx), snapshot, p.cfg.Payload)
	p.metrics.IncSubmission("stored")
	log.Info().Str("image_url", imageURL).Int("subscribers", len(snapshot)).Msg("art stored")
	return result, nil
}

// stage copies the image into a fresh directory under the staging root,
// keeping the client's (sanitized) filename so it becomes the object name.
func (p *Pipeline) stage(sub domain.Submission) (string, error) {
	dir := filepath.Join(p.cfg.StagingDir, p.newID())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	path := filepath.Join(dir, storage.SafeName(sub.Filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, sub.Image); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

func (p *Pipeline) upload(ctx context.Context, path, contentType, token string) (string, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.UploadTimeout)
	defer cancel()
	return p.blobs.Store(ctx, path, contentType, token)
}

func (p *Pipeline) persist(ctx context.Context, id string, record domain.ArtRecord) error {
	ctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.records.WriteRecord(ctx, id, record)
}

func (p *Pipeline) readSubscribers(ctx context.Context) (domain.Snapshot, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	snapshot, err := p.subs.ReadSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	return snapshot, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
