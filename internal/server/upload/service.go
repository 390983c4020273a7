package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/lumensite/lumen/internal/utils"
)

type InitParams struct {
	FileName    string
	FileSize    int64
	TotalChunks uint32
	ChunkSize   int64  // zero selects the server default
	Checksum    string // optional sha256 of the whole file
}

type ChunkParams struct {
	SessionID   string
	Index       uint32
	TotalChunks uint32
	Size        int64 // -1 when the request did not declare a length
	Checksum    string
	Body        io.Reader
}

type CompleteParams struct {
	SessionID        string
	TotalChunks      uint32 // zero skips the check
	OriginalFileName string
}

type SimpleParams struct {
	FileName string
	Size     int64
	Checksum string
	Body     io.Reader
}

// UploadService owns the upload session lifecycle
type UploadService struct {
	config    *Config
	store     SessionStore
	chunks    ChunkStore
	publisher Publisher
	assembler *Assembler
	locks     *sessionLocks
	now       func() time.Time

	sweepWg     sync.WaitGroup
	stopSweeper context.CancelFunc
}

type ServiceOption func(*UploadService)

// WithPublicURL sets the base URL artifact links are built from
func WithPublicURL(u string) ServiceOption {
	return func(s *UploadService) {
		s.assembler.publicURL = strings.TrimRight(u, "/")
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *UploadService) {
		s.now = now
		s.assembler.now = now
	}
}

func NewUploadService(cfg *Config, store SessionStore, chunks ChunkStore, publisher Publisher, opts ...ServiceOption) *UploadService {
	locks := newSessionLocks()
	assembler := newAssembler(store, chunks, publisher, locks)
	assembler.retention = cfg.CompletedRetention

	svc := &UploadService{
		config:    cfg,
		store:     store,
		chunks:    chunks,
		publisher: publisher,
		assembler: assembler,
		locks:     locks,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *UploadService) Assembler() *Assembler {
	return s.assembler
}

// MaxChunkSize is the largest chunk body a session accepts
func (s *UploadService) MaxChunkSize() int64 {
	return s.config.MaxChunkSize
}

// MaxFileSize is the largest file a session or a simple upload accepts
func (s *UploadService) MaxFileSize() int64 {
	return s.config.MaxFileSize
}

// Start recovers sessions interrupted mid-assembly and starts the expiry sweeper
func (s *UploadService) Start(ctx context.Context) error {
	stuck, err := s.store.ListByStatus(ctx, StatusAssembling)
	if err != nil {
		return fmt.Errorf("list interrupted assemblies: %w", err)
	}
	for _, sess := range stuck {
		if _, err := s.store.Transition(ctx, sess.ID, Transition{From: StatusAssembling, To: StatusOpen}); err != nil {
			return fmt.Errorf("reopen session %s: %w", sess.ID, err)
		}
		slog.Warn("upload session reopened after interrupted assembly", "session", sess.ID)
	}

	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("upload sweep", "error", err)
	}

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopSweeper = cancel
	s.sweepWg.Add(1)
	go s.runSweeper(sweepCtx)

	slog.Info("upload service start",
		"chunkSize", humanize.IBytes(uint64(s.config.ChunkSize)),
		"maxFileSize", humanize.IBytes(uint64(s.config.MaxFileSize)),
		"sessionTTL", s.config.SessionTTL,
		"recovered", len(stuck))
	return nil
}

func (s *UploadService) Shutdown(ctx context.Context) error {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}

	done := make(chan struct{})
	go func() {
		s.sweepWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.store.Close()
}

// Init opens a new session
func (s *UploadService) Init(ctx context.Context, p *InitParams) (*Session, error) {
	name, err := s.admitName(p.FileName)
	if err != nil {
		return nil, err
	}
	if p.FileSize < 0 {
		return nil, fmt.Errorf("%w: file size must not be negative", ErrInvalidInput)
	}

	chunkSize := p.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.config.ChunkSize
	}
	if chunkSize < s.config.MinChunkSize || chunkSize > s.config.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d outside [%d, %d]", ErrInvalidInput, chunkSize, s.config.MinChunkSize, s.config.MaxChunkSize)
	}
	if want := expectedChunks(p.FileSize, chunkSize); p.TotalChunks != want {
		return nil, fmt.Errorf("%w: totalChunks %d, expected %d for %d bytes in %d byte chunks", ErrInvalidInput, p.TotalChunks, want, p.FileSize, chunkSize)
	}

	checksum := strings.ToLower(p.Checksum)
	if checksum != "" && !utils.IsSHA256Hex(checksum) {
		return nil, fmt.Errorf("%w: checksum must be a hex sha256", ErrInvalidInput)
	}

	if err := s.admitSize(ctx, p.FileSize); err != nil {
		return nil, err
	}
	if s.config.MaxOpenSessions > 0 {
		active, err := s.store.CountActive(ctx)
		if err != nil {
			return nil, err
		}
		if active >= s.config.MaxOpenSessions {
			return nil, fmt.Errorf("%w: %d active", ErrTooManySessions, active)
		}
	}

	sess := newSession(uuid.NewString(), name, p.FileSize, chunkSize, checksum, s.now(), s.config.SessionTTL)
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("upload init",
		"session", sess.ID,
		"file", sess.FileName,
		"size", humanize.IBytes(uint64(sess.DeclaredSize)),
		"chunks", sess.TotalChunks)
	return sess, nil
}

// RecordChunk stages one chunk and marks it received.
// Sending an index again replaces the stored bytes and leaves the received set unchanged.
func (s *UploadService) RecordChunk(ctx context.Context, p *ChunkParams) (*Session, error) {
	sess, err := s.live(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	if p.TotalChunks != sess.TotalChunks {
		return nil, fmt.Errorf("%w: totalChunks %d does not match session (%d)", ErrIndexOutOfRange, p.TotalChunks, sess.TotalChunks)
	}
	if p.Index >= sess.TotalChunks {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, p.Index, sess.TotalChunks)
	}
	if sess.Status != StatusOpen {
		return nil, closedError(sess.ID, sess.Status)
	}

	want := sess.ChunkLength(p.Index)
	if p.Size >= 0 && p.Size != want {
		return nil, fmt.Errorf("%w: chunk %d is %d bytes, expected %d", ErrChunkSizeMismatch, p.Index, p.Size, want)
	}
	checksum := strings.ToLower(p.Checksum)
	if checksum != "" && !utils.IsSHA256Hex(checksum) {
		return nil, fmt.Errorf("%w: chunk checksum must be a hex sha256", ErrInvalidInput)
	}

	staged, err := s.chunks.Stage(ctx, &ChunkWrite{
		SessionID: sess.ID,
		Index:     p.Index,
		Size:      want,
		Checksum:  checksum,
		Body:      p.Body,
	})
	if err != nil {
		slog.Warn("upload chunk rejected", "session", sess.ID, "index", p.Index, "error", err)
		return nil, err
	}

	updated, err := s.commitChunk(ctx, sess.ID, p.Index, staged)
	if err != nil {
		staged.Discard()
		return nil, err
	}

	slog.Debug("upload chunk", "session", sess.ID, "index", p.Index, "received", updated.Received.Cardinality(), "total", updated.TotalChunks)
	return updated, nil
}

// commitChunk makes a staged chunk visible while the session is still open.
// The session lock is held only for the status check, the commit and the store update.
func (s *UploadService) commitChunk(ctx context.Context, id string, index uint32, staged StagedChunk) (*Session, error) {
	unlock := s.locks.rlock(id)
	defer unlock()

	// an assembly, a cancel or the sweeper may have moved the session while the body was read
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusOpen {
		return nil, closedError(cur.ID, cur.Status)
	}
	if cur.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s expired", ErrUnknownSession, id)
	}

	if err := staged.Commit(ctx); err != nil {
		return nil, err
	}
	return s.store.AddChunk(ctx, id, index, s.now().Add(s.config.SessionTTL))
}

// IsComplete reports whether every chunk of the session has been received
func (s *UploadService) IsComplete(ctx context.Context, id string) (bool, error) {
	sess, err := s.live(ctx, id)
	if err != nil {
		return false, err
	}
	return sess.IsComplete(), nil
}

// Status returns the current session state
func (s *UploadService) Status(ctx context.Context, id string) (*Session, error) {
	return s.live(ctx, id)
}

// Complete assembles and publishes the session's file
func (s *UploadService) Complete(ctx context.Context, p *CompleteParams) (*Artifact, error) {
	sess, err := s.live(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if p.TotalChunks != 0 && p.TotalChunks != sess.TotalChunks {
		return nil, fmt.Errorf("%w: totalChunks %d does not match session (%d)", ErrInvalidInput, p.TotalChunks, sess.TotalChunks)
	}

	switch sess.Status {
	case StatusComplete:
		return sess.Artifact, nil
	case StatusAssembling:
		return nil, fmt.Errorf("%w: session %s", ErrAssemblyInProgress, sess.ID)
	case StatusFailed:
		return nil, fmt.Errorf("%w: session %s: %s", ErrAssemblyFailed, sess.ID, sess.Reason)
	}

	if !sess.IsComplete() {
		return nil, &IncompleteUploadError{SessionID: sess.ID, Missing: sess.Missing()}
	}
	return s.assembler.Assemble(ctx, sess.ID, p.OriginalFileName)
}

// Cancel drops a session and its staged chunks. A published artifact is kept.
func (s *UploadService) Cancel(ctx context.Context, id string) error {
	sess, err := s.live(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == StatusAssembling {
		return fmt.Errorf("%w: session %s", ErrAssemblyInProgress, id)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if sess.Status == StatusOpen {
		ok, err := s.store.Transition(ctx, id, Transition{From: StatusOpen, To: StatusExpired, Reason: "canceled"})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: session %s", ErrAssemblyInProgress, id)
		}
	}

	if err := s.purge(ctx, id); err != nil {
		return err
	}
	slog.Info("upload canceled", "session", id)
	return nil
}

// UploadSimple publishes a small file sent in a single request
func (s *UploadService) UploadSimple(ctx context.Context, p *SimpleParams) (*Artifact, error) {
	name, err := s.admitName(p.FileName)
	if err != nil {
		return nil, err
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	checksum := strings.ToLower(p.Checksum)
	if checksum != "" && !utils.IsSHA256Hex(checksum) {
		return nil, fmt.Errorf("%w: checksum must be a hex sha256", ErrInvalidInput)
	}
	if err := s.admitSize(ctx, p.Size); err != nil {
		return nil, err
	}

	published := publishedName(uuid.NewString(), name)
	body := newVerifyingReader(p.Body, p.Size, checksum, ErrSizeMismatch)
	if err := s.publisher.Publish(ctx, published, p.Size, body, body.Verify); err != nil {
		if verr := body.Failure(); verr != nil {
			return nil, verr
		}
		return nil, storageErr(err)
	}

	artifact := &Artifact{
		PublishedName: published,
		Size:          body.Len(),
		URL:           utils.JoinURL(s.assembler.publicURL, "files", published),
		Checksum:      body.Sum(),
	}
	slog.Info("upload simple", "name", published, "size", humanize.IBytes(uint64(artifact.Size)))
	return artifact, nil
}

// Open returns a published artifact
func (s *UploadService) Open(ctx context.Context, name string) (*PublishedFile, error) {
	return s.publisher.Open(ctx, name)
}

// Sweep removes expired sessions and their staged chunks. It returns the number removed.
func (s *UploadService) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	removed := 0
	for _, sess := range expired {
		ok, err := s.expire(ctx, sess)
		if err != nil {
			slog.Error("upload sweep", "session", sess.ID, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		slog.Info("upload sweep", "removed", removed)
	}
	return removed, nil
}

func (s *UploadService) runSweeper(ctx context.Context) {
	defer s.sweepWg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("upload sweep", "error", err)
			}
		}
	}
}

// live returns the session, purging it first if it has expired
func (s *UploadService) live(ctx context.Context, id string) (*Session, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusExpired || sess.Expired(s.now()) {
		if _, err := s.expire(ctx, sess); err != nil {
			slog.Warn("upload expire on access", "session", id, "error", err)
		}
		return nil, fmt.Errorf("%w: %s expired", ErrUnknownSession, id)
	}
	return sess, nil
}

// expire retires an expired session. Sessions being assembled are left alone.
func (s *UploadService) expire(ctx context.Context, sess *Session) (bool, error) {
	switch sess.Status {
	case StatusAssembling:
		return false, nil
	case StatusOpen:
		ok, err := s.expireOpen(ctx, sess.ID)
		if err != nil || !ok {
			return false, err
		}
	}

	if err := s.purge(ctx, sess.ID); err != nil {
		return false, err
	}
	slog.Debug("upload session expired", "session", sess.ID, "status", sess.Status)
	return true, nil
}

// expireOpen moves an open session to expired unless a chunk refreshed it since it was listed
func (s *UploadService) expireOpen(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrUnknownSession) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if cur.Status != StatusOpen || !cur.Expired(s.now()) {
		return false, nil
	}
	return s.store.Transition(ctx, id, Transition{From: StatusOpen, To: StatusExpired, Reason: "expired"})
}

func (s *UploadService) purge(ctx context.Context, id string) error {
	if err := s.chunks.DeleteAll(ctx, id); err != nil {
		return fmt.Errorf("delete staged chunks: %w", err)
	}
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrUnknownSession) {
		return err
	}
	return nil
}

func (s *UploadService) admitName(fileName string) (string, error) {
	name := utils.SanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidInput, fileName)
	}
	if len(s.config.AllowedNames) == 0 {
		return name, nil
	}

	lower := strings.ToLower(name)
	for _, pattern := range s.config.AllowedNames {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNameNotAllowed, name)
}

func (s *UploadService) admitSize(ctx context.Context, size int64) error {
	if size > s.config.MaxFileSize {
		return fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.config.MaxFileSize)))
	}

	reporter, ok := s.chunks.(capacityReporter)
	if !ok {
		return nil
	}
	free, err := reporter.FreeBytes(ctx)
	if err != nil {
		slog.Warn("upload admission: free space unknown", "error", err)
		return nil
	}
	// staged chunks and the assembled copy coexist until assembly finishes
	need := uint64(2*size + s.config.MinFreeBytes)
	if free < need {
		return fmt.Errorf("%w: %s free, %s needed", ErrInsufficientStorage, humanize.IBytes(free), humanize.IBytes(need))
	}
	return nil
}
