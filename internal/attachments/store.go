package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"assistant/internal/blob"
	"assistant/internal/mediaurl"
	"assistant/internal/metrics"
	"assistant/internal/models"
	"assistant/internal/notify"
	"assistant/internal/storage"
)

var ErrUploadsInFlight = errors.New("attachments are still uploading")

const (
	ReasonTooLarge     = "too_large"
	ReasonUnsupported  = "unsupported_type"
	ReasonUploadFailed = "upload_failed"
)

type Uploader interface {
	Upload(ctx context.Context, bucket, name string, r io.Reader, opts storage.UploadOptions) (*storage.Object, error)
	PublicURL(bucket, name string) string
}

type Config struct {
	Bucket              string
	MaxBytes            int64
	InlineImageMaxBytes int64
	CacheControl        string
	AllowedMimeTypes    []string
	Concurrency         int
}

type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

type BatchResult struct {
	Staged   []models.Attachment `json:"staged"`
	Rejected []Rejection         `json:"rejected"`
	Notices  []notify.Notice     `json:"notices"`
}

// Batch is the handle of one Select call.
type Batch struct {
	done   chan struct{}
	result BatchResult
}

func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until every file of the batch was staged or rejected.
func (b *Batch) Wait() BatchResult {
	<-b.done
	return b.result
}

// Store holds the attachments staged for the next outgoing message of one
// conversation.
type Store struct {
	cfg         Config
	uploader    Uploader
	provisioner *Provisioner
	notifier    notify.Notifier
	now         func() time.Time

	mu       sync.Mutex
	staged   []models.Attachment
	pending  int
	onChange func([]models.Attachment)
}

func NewStore(cfg Config, uploader Uploader, provisioner *Provisioner, notifier notify.Notifier) *Store {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Store{
		cfg:         cfg,
		uploader:    uploader,
		provisioner: provisioner,
		notifier:    notifier,
		now:         time.Now,
	}
}

// OnChange registers fn to receive the staged list after every change.
func (s *Store) OnChange(fn func([]models.Attachment)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Select starts resolving files and returns immediately. The store counts
// as uploading until the returned batch is done.
func (s *Store) Select(ctx context.Context, files []FileInput) *Batch {
	batch := &Batch{done: make(chan struct{})}

	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	go s.runBatch(context.WithoutCancel(ctx), files, batch)

	return batch
}

type plannedFile struct {
	input    FileInput
	mimeType string
	inline   bool
}

func (s *Store) runBatch(ctx context.Context, files []FileInput, batch *Batch) {
	var result BatchResult
	recorder := &notify.Recorder{}
	notifier := notify.Multi(s.notifier, recorder)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while resolving attachments", "component", "attachments", "panic", r)
		}

		s.mu.Lock()
		s.staged = append(s.staged, result.Staged...)
		s.pending--
		snapshot, onChange := s.snapshotLocked(), s.onChange
		s.mu.Unlock()

		if len(result.Staged) > 0 {
			notifier.Notify(notify.Info("Upload successful", fmt.Sprintf("%d file(s) uploaded successfully.", len(result.Staged))))
		}
		result.Notices = recorder.Notices()
		if onChange != nil {
			onChange(snapshot)
		}

		batch.result = result
		close(batch.done)
	}()

	planned := make([]*plannedFile, len(files))
	needsUpload := false
	for i, file := range files {
		p, rejection := s.plan(file, notifier)
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}
		planned[i] = p
		if !p.inline {
			needsUpload = true
		}
	}

	if needsUpload && s.provisioner != nil {
		s.provisioner.Ensure(ctx)
	}

	resolved := make([]*models.Attachment, len(files))
	failures := make([]*Rejection, len(files))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range planned {
		if p == nil {
			continue
		}
		g.Go(func() error {
			attachment, err := s.resolve(ctx, p)
			if err != nil {
				metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentFailed).Inc()
				slog.Warn("error uploading attachment", "component", "attachments", "name", p.input.Name, "error", err)
				notifier.Notify(notify.Error("Upload failed", fmt.Sprintf("Failed to upload %s. %s", p.input.Name, describeUploadError(err))))
				failures[i] = &Rejection{Name: p.input.Name, Reason: ReasonUploadFailed, Detail: describeUploadError(err)}
				return nil
			}
			resolved[i] = attachment
			return nil
		})
	}
	_ = g.Wait()

	for i := range files {
		if resolved[i] != nil {
			result.Staged = append(result.Staged, *resolved[i])
		}
		if failures[i] != nil {
			result.Rejected = append(result.Rejected, *failures[i])
		}
	}
}

// plan validates a file against the size ceiling and type rules without
// reading it.
func (s *Store) plan(file FileInput, notifier notify.Notifier) (*plannedFile, *Rejection) {
	mimeType := file.declaredMimeType()

	if s.cfg.MaxBytes > 0 && file.Size >= s.cfg.MaxBytes {
		metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentRejected).Inc()
		detail := fmt.Sprintf("%s exceeds the %s limit.", file.Name, humanize.IBytes(uint64(s.cfg.MaxBytes)))
		notifier.Notify(notify.Error("File too large", detail))
		return nil, &Rejection{Name: file.Name, Reason: ReasonTooLarge, Detail: detail}
	}

	if !s.allowed(mimeType) {
		metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentRejected).Inc()
		detail := fmt.Sprintf("%s is not a supported file type.", file.Name)
		notifier.Notify(notify.Error("Unsupported file", detail))
		return nil, &Rejection{Name: file.Name, Reason: ReasonUnsupported, Detail: detail}
	}

	return &plannedFile{
		input:    file,
		mimeType: mimeType,
		inline:   isImage(mimeType) && file.Size < s.cfg.InlineImageMaxBytes,
	}, nil
}

func (s *Store) allowed(mimeType string) bool {
	if blob.IsBlockedMimeType(mimeType) {
		return false
	}
	if len(s.cfg.AllowedMimeTypes) == 0 {
		return true
	}
	for _, pattern := range s.cfg.AllowedMimeTypes {
		if storage.MatchMimeType(pattern, mimeType) {
			return true
		}
	}
	return false
}

func (s *Store) resolve(ctx context.Context, p *plannedFile) (*models.Attachment, error) {
	attachment := &models.Attachment{
		Name:     p.input.Name,
		MimeType: p.mimeType,
		Size:     p.input.Size,
	}

	if !isImage(p.mimeType) {
		locator, err := s.upload(ctx, p.input, p.mimeType, nil)
		if err != nil {
			return nil, err
		}
		attachment.Locator = locator
		metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentUploaded).Inc()
		return attachment, nil
	}

	data, err := readAll(p.input, s.cfg.MaxBytes)
	if err != nil {
		return nil, err
	}
	attachment.Size = int64(len(data))
	attachment.PreviewRef = previewLocator(data)

	if p.inline && int64(len(data)) < s.cfg.InlineImageMaxBytes {
		attachment.Locator = mediaurl.EncodeData(p.mimeType, data)
		attachment.Inline = true
		metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentInline).Inc()
		return attachment, nil
	}

	if p.inline && s.provisioner != nil {
		s.provisioner.Ensure(ctx)
	}
	locator, err := s.upload(ctx, p.input, p.mimeType, data)
	if err != nil {
		return nil, err
	}
	attachment.Locator = locator
	metrics.AttachmentsTotal.WithLabelValues(metrics.AttachmentUploaded).Inc()
	return attachment, nil
}

// upload stores the file under a timestamped, sanitized name. data, when
// set, is used instead of reopening the input.
func (s *Store) upload(ctx context.Context, file FileInput, mimeType string, data []byte) (string, error) {
	var src io.Reader
	if data != nil {
		src = bytes.NewReader(data)
	} else {
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("opening file: %w", err)
		}
		defer rc.Close()
		src = rc
	}

	name := ObjectName(s.now(), file.Name)
	obj, err := s.uploader.Upload(ctx, s.cfg.Bucket, name, src, storage.UploadOptions{
		ContentType:  mimeType,
		CacheControl: s.cfg.CacheControl,
		Upsert:       true,
	})
	if err != nil {
		return "", err
	}

	return s.uploader.PublicURL(obj.Bucket, obj.Name), nil
}

// Remove discards the staged attachment at index. An out of range index is
// ignored.
func (s *Store) Remove(index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.staged) {
		s.mu.Unlock()
		return false
	}
	s.staged = append(s.staged[:index:index], s.staged[index+1:]...)
	snapshot, onChange := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
	return true
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.staged = nil
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(nil)
	}
}

// Take hands the staged attachments over to the caller and clears the store.
// It refuses while a batch is still resolving.
func (s *Store) Take() ([]models.Attachment, error) {
	s.mu.Lock()
	if s.pending > 0 {
		s.mu.Unlock()
		return nil, ErrUploadsInFlight
	}
	taken := s.staged
	s.staged = nil
	onChange := s.onChange
	s.mu.Unlock()

	if len(taken) > 0 && onChange != nil {
		onChange(nil)
	}
	return taken, nil
}

func (s *Store) Staged() []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

func (s *Store) snapshotLocked() []models.Attachment {
	if len(s.staged) == 0 {
		return nil
	}
	return append([]models.Attachment(nil), s.staged...)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// ObjectName disambiguates an uploaded filename with a millisecond timestamp.
func ObjectName(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), unsafeNameChars.ReplaceAllString(original, "_"))
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func readAll(file FileInput, limit int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if limit > 0 && int64(len(data)) >= limit {
		return nil, storage.ErrFileTooLarge
	}
	return data, nil
}

func previewLocator(data []byte) string {
	preview, err := blob.GenerateStaticImagePreview(bytes.NewReader(data), blob.DefaultPreviewMaxEdge, blob.DefaultPreviewQuality)
	if err != nil {
		slog.Debug("skipping attachment preview", "component", "attachments", "error", err)
		return ""
	}
	return mediaurl.EncodeData(preview.MimeType, preview.Data)
}

func describeUploadError(err error) string {
	switch {
	case errors.Is(err, storage.ErrFileTooLarge):
		return "The file exceeds the storage size limit."
	case errors.Is(err, storage.ErrDisallowedType), errors.Is(err, storage.ErrExecutableFile):
		return "The file type is not allowed."
	case errors.Is(err, storage.ErrBucketNotFound):
		return "Storage is not available."
	default:
		return err.Error()
	}
}
