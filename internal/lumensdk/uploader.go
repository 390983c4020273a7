package lumensdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lumensite/lumen/internal/chunkplan"
	"github.com/lumensite/lumen/internal/utils"
	"golang.org/x/sync/errgroup"
)

const cancelTimeout = 10 * time.Second

// UploadTask is a running upload. It reports progress on Progress and ends with exactly one result from Wait.
type UploadTask struct {
	api    *UploadAPI
	params *UploadParams
	ctx    context.Context
	cancel context.CancelFunc

	file     *os.File
	size     int64
	fileName string

	progress chan Progress
	done     chan struct{}
	artifact *Artifact
	err      error

	mu        sync.Mutex
	sessionID string
	received  []bool
	completed uint32
	sent      int64
	percent   int
}

// Start validates params and begins the upload in the background
func (u *UploadAPI) Start(ctx context.Context, params *UploadParams) (*UploadTask, error) {
	if params == nil || params.FilePath == "" {
		return nil, stageError(StageValidate, fmt.Errorf("%w: file path is required", ErrInvalidInput))
	}
	params = params.withDefaults()

	file, err := os.Open(params.FilePath)
	if err != nil {
		return nil, stageError(StageValidate, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, stageError(StageValidate, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	if info.IsDir() || info.Size() == 0 {
		file.Close()
		return nil, stageError(StageValidate, fmt.Errorf("%w: %s is empty or not a regular file", ErrInvalidInput, params.FilePath))
	}

	fileName := params.FileName
	if fileName == "" {
		fileName = filepath.Base(params.FilePath)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &UploadTask{
		api:      u,
		params:   params,
		ctx:      taskCtx,
		cancel:   cancel,
		file:     file,
		size:     info.Size(),
		fileName: fileName,
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}

	go t.run(fingerprint(info))
	return t, nil
}

// Progress delivers the latest progress. Stale values are dropped for slow readers. Closed when the task ends.
func (t *UploadTask) Progress() <-chan Progress {
	return t.progress
}

// Done is closed once the task has ended
func (t *UploadTask) Done() <-chan struct{} {
	return t.done
}

// Cancel abandons the upload. Wait then returns an error matching ErrUploadCanceled.
func (t *UploadTask) Cancel() {
	t.cancel()
}

// Wait blocks until the task ends and returns its result
func (t *UploadTask) Wait() (*Artifact, error) {
	<-t.done
	return t.artifact, t.err
}

// SessionID returns the server session, empty before init or for single request uploads
func (t *UploadTask) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *UploadTask) run(fp string) {
	artifact, err := t.upload(fp)
	t.file.Close()

	t.artifact, t.err = artifact, err
	if err == nil {
		t.mu.Lock()
		p := t.snapshotLocked()
		p.Percent = 100
		p.BytesSent = t.size
		t.publish(p)
		t.mu.Unlock()
	}

	close(t.progress)
	t.cancel()
	close(t.done)
}

func (t *UploadTask) upload(fp string) (*Artifact, error) {
	if t.size < t.params.ChunkSize {
		return t.uploadSimple()
	}

	plan, err := chunkplan.New(t.size, t.params.ChunkSize)
	if err != nil {
		return nil, stageError(StageValidate, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	t.received = make([]bool, plan.TotalChunks)

	var resume *resumeFile
	if t.params.ResumeDir != "" {
		resume, err = openResumeFile(t.params.ResumeDir, t.api.config.BaseURL, t.params.FilePath, t.fileName)
		if err != nil {
			return nil, stageError(StageValidate, err)
		}
		defer resume.close()
	}

	state := &resumeState{
		ServerURL:   t.api.config.BaseURL,
		FilePath:    t.params.FilePath,
		FileName:    t.fileName,
		Fingerprint: fp,
		Size:        t.size,
		ChunkSize:   plan.ChunkSize,
		TotalChunks: plan.TotalChunks,
	}

	artifact, err := t.openSession(plan, state, resume)
	if err != nil || artifact != nil {
		return artifact, err
	}

	if err := t.sendChunks(plan, t.pending(plan), resume); err != nil {
		t.abandon(resume)
		return nil, err
	}

	artifact, err = t.completeSession(plan, resume)
	if err != nil {
		t.abandon(resume)
		return nil, err
	}

	if resume != nil {
		if err := resume.remove(); err != nil {
			slog.Warn("remove resume state", "error", err)
		}
	}
	return artifact, nil
}

// openSession resumes a saved session when the server still has it open, or starts a new one.
// A non-nil artifact means the file was already published by an earlier run.
func (t *UploadTask) openSession(plan *chunkplan.Plan, state *resumeState, resume *resumeFile) (*Artifact, error) {
	if resume != nil {
		saved, err := resume.load(state)
		if err != nil {
			return nil, stageError(StageValidate, err)
		}
		if saved != nil {
			artifact, ok := t.resumeSession(plan, saved)
			if artifact != nil {
				resume.remove()
				return artifact, nil
			}
			if ok {
				if err := resume.save(saved); err != nil {
					return nil, stageError(StageValidate, err)
				}
				return nil, nil
			}
			slog.Info("resume state is stale, starting over", "session", saved.SessionID)
		}
	}

	init := &InitRequest{
		FileName:    t.fileName,
		FileSize:    t.size,
		TotalChunks: plan.TotalChunks,
		ChunkSize:   plan.ChunkSize,
	}
	if t.params.Checksum {
		sum, err := utils.FileSHA256(t.params.FilePath)
		if err != nil {
			return nil, stageError(StageInit, err)
		}
		init.Checksum = sum
	}

	resp, err := t.api.init(t.ctx, init)
	if err != nil {
		return nil, t.failure(StageInit, -1, err)
	}
	if resp.ChunkSize != plan.ChunkSize || resp.TotalChunks != plan.TotalChunks {
		return nil, stageError(StageInit, fmt.Errorf("server negotiated %d chunks of %d bytes, expected %d of %d",
			resp.TotalChunks, resp.ChunkSize, plan.TotalChunks, plan.ChunkSize))
	}

	t.mu.Lock()
	t.sessionID = resp.SessionID
	t.mu.Unlock()
	slog.Debug("upload init", "session", resp.SessionID, "file", t.fileName, "chunks", plan.TotalChunks)

	if resume != nil {
		state.SessionID = resp.SessionID
		if err := resume.save(state); err != nil {
			return nil, stageError(StageInit, err)
		}
	}
	return nil, nil
}

// resumeSession adopts the chunks the server already holds for saved
func (t *UploadTask) resumeSession(plan *chunkplan.Plan, saved *resumeState) (*Artifact, bool) {
	sess, err := t.api.Status(t.ctx, saved.SessionID)
	if err != nil {
		slog.Debug("resume status", "session", saved.SessionID, "error", err)
		return nil, false
	}

	switch {
	case sess.Status == StatusComplete && sess.Artifact != nil:
		return sess.Artifact, false
	case sess.Status != StatusOpen || sess.TotalChunks != plan.TotalChunks || sess.ChunkSize != plan.ChunkSize:
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = saved.SessionID
	for i := range t.received {
		t.received[i] = true
	}
	for _, i := range sess.MissingIndices {
		if int(i) < len(t.received) {
			t.received[i] = false
		}
	}
	saved.Completed = saved.Completed[:0]
	for r := range plan.Chunks() {
		if t.received[r.Index] {
			t.completed++
			t.sent += r.Length
			saved.Completed = append(saved.Completed, r.Index)
		}
	}
	t.publish(t.snapshotLocked())

	slog.Info("upload resumed", "session", saved.SessionID, "received", t.completed, "total", plan.TotalChunks)
	return nil, true
}

func (t *UploadTask) pending(plan *chunkplan.Plan) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []uint32
	for r := range plan.Chunks() {
		if !t.received[r.Index] {
			out = append(out, r.Index)
		}
	}
	return out
}

// sendChunks uploads indices through a pool of at most MaxConcurrent requests
func (t *UploadTask) sendChunks(plan *chunkplan.Plan, indices []uint32, resume *resumeFile) error {
	g, gctx := errgroup.WithContext(t.ctx)
	g.SetLimit(t.params.MaxConcurrent)

	for _, index := range indices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return t.sendChunk(gctx, plan, index, resume)
		})
	}

	err := g.Wait()
	if err == nil && t.ctx.Err() != nil {
		err = t.ctx.Err()
	}
	if err != nil && t.ctx.Err() != nil {
		return t.failure(StageChunk, -1, err)
	}
	return err
}

func (t *UploadTask) sendChunk(ctx context.Context, plan *chunkplan.Plan, index uint32, resume *resumeFile) error {
	section, err := plan.Section(t.file, index)
	if err != nil {
		return &UploadError{Stage: StageChunk, Index: int(index), Err: err}
	}

	data := make([]byte, section.Size())
	if _, err := io.ReadFull(section, data); err != nil {
		return &UploadError{Stage: StageChunk, Index: int(index), Err: fmt.Errorf("read chunk: %w", err)}
	}

	if _, err := t.api.sendChunk(ctx, t.SessionID(), t.fileName, index, plan.TotalChunks, data); err != nil {
		return t.failure(StageChunk, int(index), err)
	}

	if resume != nil {
		if err := resume.markDone(index); err != nil {
			slog.Warn("save resume state", "error", err)
		}
	}
	t.chunkDone(plan, index, int64(len(data)))
	return nil
}

// completeSession asks the server to assemble the file. Chunks reported missing are resent once.
// While another caller assembles the session, its status is polled.
func (t *UploadTask) completeSession(plan *chunkplan.Plan, resume *resumeFile) (*Artifact, error) {
	body := &CompleteRequest{
		SessionID:        t.SessionID(),
		FileName:         t.fileName,
		TotalChunks:      plan.TotalChunks,
		OriginalFileName: filepath.Base(t.params.FilePath),
	}

	resent := false
	for {
		artifact, err := t.api.complete(t.ctx, body)
		if err == nil {
			return artifact, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case CodeUploadIncomplete:
				if !resent && len(apiErr.MissingIndices) > 0 {
					resent = true
					slog.Warn("server is missing chunks, resending", "session", body.SessionID, "missing", apiErr.MissingIndices)
					if err := t.sendChunks(plan, apiErr.MissingIndices, resume); err != nil {
						return nil, err
					}
					continue
				}
			case CodeUploadAssemblyInProgress:
				return t.pollComplete(body.SessionID)
			}
		}
		return nil, t.failure(StageComplete, -1, err)
	}
}

func (t *UploadTask) pollComplete(sessionID string) (*Artifact, error) {
	ticker := time.NewTicker(t.params.PollInterval)
	defer ticker.Stop()

	for range t.params.MaxPolls {
		select {
		case <-t.ctx.Done():
			return nil, t.failure(StageComplete, -1, t.ctx.Err())
		case <-ticker.C:
		}

		sess, err := t.api.Status(t.ctx, sessionID)
		if err != nil {
			return nil, t.failure(StageComplete, -1, err)
		}

		switch sess.Status {
		case StatusComplete:
			if sess.Artifact == nil {
				return nil, stageError(StageComplete, errors.New("session complete without artifact"))
			}
			return sess.Artifact, nil
		case StatusAssembling:
			continue
		case StatusFailed:
			return nil, stageError(StageComplete, &APIError{Code: CodeUploadAssemblyFailed, Message: sess.Reason})
		default:
			return nil, stageError(StageComplete, fmt.Errorf("session %s is %s", sessionID, sess.Status))
		}
	}
	return nil, stageError(StageComplete, fmt.Errorf("session %s still assembling after %d polls", sessionID, t.params.MaxPolls))
}

func (t *UploadTask) uploadSimple() (*Artifact, error) {
	var checksum string
	if t.params.Checksum {
		sum, err := utils.FileSHA256(t.params.FilePath)
		if err != nil {
			return nil, stageError(StageComplete, err)
		}
		checksum = sum
	}

	artifact, err := t.api.simple(t.ctx, t.params.FilePath, t.fileName, t.size, checksum, func(sent, total int64) {
		if total <= 0 {
			return
		}
		t.mu.Lock()
		t.sent = sent
		p := t.snapshotLocked()
		p.Percent = max(t.percent, int(90*sent/total))
		t.percent = p.Percent
		t.publish(p)
		t.mu.Unlock()
	})
	if err != nil {
		return nil, t.failure(StageComplete, -1, err)
	}
	return artifact, nil
}

// abandon discards the server session after a failure, unless it is kept for a later resume
func (t *UploadTask) abandon(resume *resumeFile) {
	sessionID := t.SessionID()
	if resume != nil || sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), cancelTimeout)
	defer cancel()
	if err := t.api.Cancel(ctx, sessionID); err != nil {
		slog.Debug("upload cancel", "session", sessionID, "error", err)
	}
}

// failure wraps err for stage, turning any error seen after cancellation into ErrUploadCanceled
func (t *UploadTask) failure(stage Stage, index int, err error) error {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return err
	}
	if t.ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrUploadCanceled, context.Cause(t.ctx))
	}
	return &UploadError{Stage: stage, Index: index, Err: err}
}

func (t *UploadTask) chunkDone(plan *chunkplan.Plan, index uint32, n int64) {
	t.mu.Lock()
	if t.received[index] {
		t.mu.Unlock()
		return
	}
	t.received[index] = true
	t.completed++
	t.sent += n
	t.publish(t.snapshotLocked())
	t.mu.Unlock()
}

func (t *UploadTask) snapshotLocked() Progress {
	total := uint32(len(t.received))
	p := Progress{
		CompletedChunks: t.completed,
		TotalChunks:     total,
		BytesSent:       t.sent,
		TotalBytes:      t.size,
		Percent:         t.percent,
	}
	if total > 0 {
		p.Percent = max(t.percent, int(90*uint64(t.completed)/uint64(total)))
		t.percent = p.Percent
	}
	return p
}

// publish replaces any unread progress with p. Callers hold t.mu so values go out in order.
func (t *UploadTask) publish(p Progress) {
	for {
		select {
		case t.progress <- p:
			return
		default:
		}
		select {
		case <-t.progress:
		default:
		}
	}
}

func fingerprint(info os.FileInfo) string {
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())
}
