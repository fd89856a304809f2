package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"artpost/internal/domain"
	"artpost/internal/infra"
	"artpost/internal/notify"
	"artpost/internal/storage"
)

type memoryRepo struct {
	mu       sync.Mutex
	records  map[string]domain.ArtRecord
	subs     domain.Snapshot
	writeErr error
	readErr  error
	reads    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[string]domain.ArtRecord{}}
}

func (m *memoryRepo) WriteRecord(_ context.Context, id string, rec domain.ArtRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.records[id] = rec
	return nil
}

func (m *memoryRepo) GetRecord(_ context.Context, id string) (*domain.ArtRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *memoryRepo) ReadSubscriptions(context.Context) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.subs, nil
}

type failingBlobs struct {
	calls int
}

func (f *failingBlobs) Store(context.Context, string, string, string) (string, error) {
	f.calls++
	return "", errors.New("bucket unreachable")
}

type recordingDispatcher struct {
	mu       sync.Mutex
	calls    int
	payloads []domain.NotificationPayload
	inner    Dispatcher
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, snap domain.Snapshot, payload domain.NotificationPayload) []domain.DeliveryOutcome {
	r.mu.Lock()
	r.calls++
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
	return r.inner.Dispatch(ctx, snap, payload)
}

type endpointPusher struct {
	mu    sync.Mutex
	calls int
	bad   string
}

func (e *endpointPusher) Push(_ context.Context, sub domain.Subscription, _ []byte) (int, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if sub.Endpoint == e.bad {
		return 0, errors.New("invalid endpoint")
	}
	return 201, nil
}

var payload = domain.NotificationPayload{Title: "New post", Content: "New post added", URL: "/help"}

type harness struct {
	pipeline *Pipeline
	repo     *memoryRepo
	blobs    *storage.FileStore
	pusher   *endpointPusher
	disp     *recordingDispatcher
	staging  string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir(), "http://localhost/v1/blobs")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	repo := newMemoryRepo()
	pusher := &endpointPusher{}
	disp := &recordingDispatcher{inner: notify.NewDispatcher(pusher)}
	if cfg.StagingDir == "" {
		cfg.StagingDir = t.TempDir()
	}
	cfg.Payload = payload
	return &harness{
		pipeline: New(blobs, repo, disp, cfg, infra.NopLogger(), nil),
		repo:     repo,
		blobs:    blobs,
		pusher:   pusher,
		disp:     disp,
		staging:  cfg.StagingDir,
	}
}

func sampleImage() []byte {
	return bytes.Repeat([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}, 512)
}

func submission(image []byte) domain.Submission {
	return domain.Submission{
		Image:       bytes.NewReader(image),
		Filename:    "sun.png",
		ContentType: "image/png",
		Fields: map[string]string{
			domain.FieldID:          "client-42",
			domain.FieldArtName:     "Sun",
			domain.FieldArtistName:  "Ada",
			domain.FieldDescription: "study",
		},
	}
}

func resolve(t *testing.T, store *storage.FileStore, imageURL string) []byte {
	t.Helper()
	u, err := url.Parse(imageURL)
	if err != nil {
		t.Fatalf("parse image url: %v", err)
	}
	key, err := url.PathUnescape(strings.TrimPrefix(u.EscapedPath(), "/v1/blobs/"))
	if err != nil {
		t.Fatalf("unescape key: %v", err)
	}
	rc, _, err := store.Open(context.Background(), key, u.Query().Get("token"))
	if err != nil {
		t.Fatalf("resolve image url: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	return data
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not cleaned up: %d entries", len(entries))
	}
}

func TestRunStoresRecordWithResolvableImage(t *testing.T) {
	h := newHarness(t, Config{})
	image := sampleImage()

	res, err := h.pipeline.Run(context.Background(), submission(image))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.RecordID == "" || res.RecordID == "client-42" {
		t.Fatalf("expected a generated record id, got %q", res.RecordID)
	}
	if res.CallerID != "client-42" {
		t.Fatalf("caller id = %q", res.CallerID)
	}
	if len(h.repo.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(h.repo.records))
	}
	rec := h.repo.records[res.RecordID]
	if rec.ArtName != "Sun" || rec.ArtistName != "Ada" || rec.Description != "study" || rec.CallerID != "client-42" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.ImageURL != res.ImageURL {
		t.Fatalf("record url %q != result url %q", rec.ImageURL, res.ImageURL)
	}
	if !bytes.Equal(resolve(t, h.blobs, rec.ImageURL), image) {
		t.Fatalf("image url does not resolve to the submitted bytes")
	}
	if !strings.Contains(rec.ImageURL, "sun.png") {
		t.Fatalf("object name should keep the client filename: %s", rec.ImageURL)
	}
	assertStagingEmpty(t, h.staging)
}

func TestRunWithoutSubscribersMakesNoDeliveries(t *testing.T) {
	h := newHarness(t, Config{})

	res, err := h.pipeline.Run(context.Background(), submission(sampleImage()))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Outcomes == nil || len(res.Outcomes) != 0 {
		t.Fatalf("expected empty outcomes, got %#v", res.Outcomes)
	}
	if h.pusher.calls != 0 {
		t.Fatalf("expected zero delivery attempts, got %d", h.pusher.calls)
	}
}

func TestRunIsolatesInvalidSubscriber(t *testing.T) {
	h := newHarness(t, Config{})
	h.pusher.bad = "https://push.example.com/stale"
	h.repo.subs = domain.Snapshot{
		"s1": {Endpoint: "https://push.example.com/1"},
		"s2": {Endpoint: "https://push.example.com/stale"},
		"s3": {Endpoint: "https://push.example.com/3"},
	}

	res, err := h.pipeline.Run(context.Background(), submission(sampleImage()))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(res.Outcomes))
	}
	delivered := 0
	for _, o := range res.Outcomes {
		if o.OK() {
			delivered++
		}
	}
	if delivered != 2 {
		t.Fatalf("expected 2 successful deliveries, got %d", delivered)
	}
	if h.disp.payloads[0] != payload {
		t.Fatalf("dispatcher received payload %#v", h.disp.payloads[0])
	}
}

func TestRunUploadFailureWritesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	blobs := &failingBlobs{}
	p := New(blobs, h.repo, h.disp, Config{StagingDir: h.staging, Payload: payload}, infra.NopLogger(), nil)

	_, err := p.Run(context.Background(), submission(sampleImage()))
	if err == nil {
		t.Fatalf("expected error")
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageUpload {
		t.Fatalf("expected upload stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if IsClientError(err) {
		t.Fatalf("upload failure is not a client error")
	}
	if len(h.repo.records) != 0 {
		t.Fatalf("no record may be written after a failed upload")
	}
	if h.repo.reads != 0 || h.disp.calls != 0 {
		t.Fatalf("later stages must not run after a failed upload")
	}
	assertStagingEmpty(t, h.staging)
}

func TestRunPersistFailureOrphansBlob(t *testing.T) {
	h := newHarness(t, Config{})
	h.repo.writeErr = errors.New("permission denied")

	_, err := h.pipeline.Run(context.Background(), submission(sampleImage()))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StagePersist {
		t.Fatalf("expected persist stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if h.repo.reads != 0 || h.disp.calls != 0 {
		t.Fatalf("subscribers must not be read after a failed write")
	}

	objects := 0
	walkErr := walkFiles(h.blobs.BasePath(), func(path string) {
		if !strings.HasSuffix(path, ".meta.json") {
			objects++
		}
	})
	if walkErr != nil {
		t.Fatalf("walk store: %v", walkErr)
	}
	if objects != 1 {
		t.Fatalf("expected the uploaded blob to remain in storage, found %d objects", objects)
	}
}

func TestRunSubscriberReadFailureDegrades(t *testing.T) {
	h := newHarness(t, Config{})
	h.repo.readErr = errors.New("timeout")

	res, err := h.pipeline.Run(context.Background(), submission(sampleImage()))
	if err != nil {
		t.Fatalf("expected success with notifications skipped, got %v", err)
	}
	if !res.NotificationsSkipped {
		t.Fatalf("expected NotificationsSkipped")
	}
	if len(h.repo.records) != 1 {
		t.Fatalf("record must still be stored")
	}
	if h.disp.calls != 0 {
		t.Fatalf("dispatcher must not run without a snapshot")
	}
}

func TestRunSubscriberReadFailureStrict(t *testing.T) {
	h := newHarness(t, Config{StrictSubscriberRead: true})
	h.repo.readErr = errors.New("timeout")

	_, err := h.pipeline.Run(context.Background(), submission(sampleImage()))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageReadSubscribers {
		t.Fatalf("expected read_subscribers stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrSubscriberRead) {
		t.Fatalf("expected ErrSubscriberRead, got %v", err)
	}
	if len(h.repo.records) != 1 {
		t.Fatalf("record is durably stored even though the run failed")
	}
}

func TestRunMissingImageIsClientError(t *testing.T) {
	h := newHarness(t, Config{})
	sub := submission(nil)
	sub.Image = nil

	_, err := h.pipeline.Run(context.Background(), sub)
	if !IsClientError(err) {
		t.Fatalf("expected client error, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission, got %v", err)
	}
	if len(h.repo.records) != 0 || h.repo.reads != 0 {
		t.Fatalf("no side effects expected")
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRunStageFailure(t *testing.T) {
	h := newHarness(t, Config{})
	sub := submission(nil)
	sub.Image = brokenReader{}

	_, err := h.pipeline.Run(context.Background(), sub)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageStage {
		t.Fatalf("expected stage error, got %v", err)
	}
	if len(h.repo.records) != 0 {
		t.Fatalf("no record expected")
	}
	assertStagingEmpty(t, h.staging)
}

func TestRunConcurrentSubmissionsGetDistinctRecords(t *testing.T) {
	h := newHarness(t, Config{})

	const n = 8
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := submission(bytes.Repeat([]byte{byte(i)}, 1024))
			sub.Fields[domain.FieldArtName] = string(rune('A' + i))
			results[i], errs[i] = h.pipeline.Run(context.Background(), sub)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("run %d error: %v", i, errs[i])
		}
		if seen[results[i].RecordID] {
			t.Fatalf("duplicate record id %s", results[i].RecordID)
		}
		seen[results[i].RecordID] = true
		rec := h.repo.records[results[i].RecordID]
		if rec.ArtName != string(rune('A'+i)) {
			t.Fatalf("record %d has art name %q", i, rec.ArtName)
		}
		if !bytes.Equal(resolve(t, h.blobs, rec.ImageURL), bytes.Repeat([]byte{byte(i)}, 1024)) {
			t.Fatalf("record %d resolves to another submission's image", i)
		}
	}
	if len(h.repo.records) != n {
		t.Fatalf("expected %d records, got %d", n, len(h.repo.records))
	}
}

func TestRunNormalizesText(t *testing.T) {
	h := newHarness(t, Config{})
	sub := submission(sampleImage())
	sub.Fields[domain.FieldArtName] = "  Cafe\u0301 "

	res, err := h.pipeline.Run(context.Background(), sub)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := h.repo.records[res.RecordID].ArtName; got != "Caf\u00e9" {
		t.Fatalf("art name = %q, want NFC form", got)
	}
}

func walkFiles(root string, fn func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			fn(path)
		}
		return nil
	})
}
