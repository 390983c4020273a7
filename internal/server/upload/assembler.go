package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lumensite/lumen/internal/utils"
)

// Assembler turns the staged chunks of a complete session into one published artifact, exactly once.
type Assembler struct {
	store     SessionStore
	chunks    ChunkStore
	publisher Publisher
	locks     *sessionLocks
	publicURL string
	retention time.Duration
	now       func() time.Time
}

func newAssembler(store SessionStore, chunks ChunkStore, publisher Publisher, locks *sessionLocks) *Assembler {
	return &Assembler{
		store:     store,
		chunks:    chunks,
		publisher: publisher,
		locks:     locks,
		retention: DefaultCompletedRetention,
		now:       time.Now,
	}
}

// Assemble publishes session id under originalName (the session's file name if empty).
// Only the caller that moves the session from open to assembling does the work. Concurrent
// callers get ErrAssemblyInProgress, later ones get the stored artifact.
func (a *Assembler) Assemble(ctx context.Context, id, originalName string) (*Artifact, error) {
	sess, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if originalName == "" {
		originalName = sess.FileName
	}
	safeName := utils.SanitizeFileName(originalName)
	if safeName == "" {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidInput, originalName)
	}

	won, err := a.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !won {
		return a.settled(ctx, id)
	}

	// reload, chunks may have landed between the caller's check and the claim
	sess, err = a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsComplete() {
		if _, err := a.store.Transition(ctx, id, Transition{From: StatusAssembling, To: StatusOpen}); err != nil {
			return nil, err
		}
		return nil, &IncompleteUploadError{SessionID: id, Missing: sess.Missing()}
	}

	// a dropped client connection must not abort an assembly that already started
	ctx = context.WithoutCancel(ctx)
	start := a.now()

	artifact, err := a.assemble(ctx, sess, publishedName(id, safeName))
	if err != nil {
		a.fail(ctx, sess, err)
		slog.Error("upload assembly failed", "session", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}

	if err := a.chunks.DeleteAll(ctx, id); err != nil {
		slog.Warn("upload assembly: remove staged chunks", "session", id, "error", err)
	}

	ok, err := a.store.Transition(ctx, id, Transition{
		From:      StatusAssembling,
		To:        StatusComplete,
		Artifact:  artifact,
		ExpiresAt: a.now().Add(a.retention),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mark complete: %w", ErrAssemblyFailed, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: session %s left assembling state during assembly", ErrAssemblyFailed, id)
	}

	slog.Info("upload assembled",
		"session", id,
		"name", artifact.PublishedName,
		"size", humanize.IBytes(uint64(artifact.Size)),
		"chunks", sess.TotalChunks,
		"took", a.now().Sub(start))
	return artifact, nil
}

// claim moves the session to assembling while no chunk commit for it is in flight
func (a *Assembler) claim(ctx context.Context, id string) (bool, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	return a.store.Transition(ctx, id, Transition{From: StatusOpen, To: StatusAssembling})
}

// settled reports the outcome for a caller that lost the claim
func (a *Assembler) settled(ctx context.Context, id string) (*Artifact, error) {
	sess, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case StatusComplete:
		return sess.Artifact, nil
	case StatusAssembling:
		return nil, fmt.Errorf("%w: session %s", ErrAssemblyInProgress, id)
	case StatusFailed:
		return nil, fmt.Errorf("%w: session %s: %s", ErrAssemblyFailed, id, sess.Reason)
	case StatusExpired:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	default:
		// reopened by a concurrent caller that found missing chunks
		return nil, &IncompleteUploadError{SessionID: id, Missing: sess.Missing()}
	}
}

func (a *Assembler) assemble(ctx context.Context, sess *Session, name string) (*Artifact, error) {
	var staged int64
	for i := uint32(0); i < sess.TotalChunks; i++ {
		n, err := a.chunks.Size(ctx, sess.ID, i)
		if err != nil {
			return nil, fmt.Errorf("stat chunk %d: %w", i, err)
		}
		if want := sess.ChunkLength(i); n != want {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes, expected %d", ErrSizeMismatch, i, n, want)
		}
		staged += n
	}
	if staged != sess.DeclaredSize {
		return nil, fmt.Errorf("%w: staged %d bytes, declared %d", ErrSizeMismatch, staged, sess.DeclaredSize)
	}

	seq := newChunkSequence(ctx, a.chunks, sess.ID, sess.TotalChunks)
	defer seq.Close()

	body := newVerifyingReader(seq, sess.DeclaredSize, sess.Checksum, ErrSizeMismatch)
	if err := a.publisher.Publish(ctx, name, sess.DeclaredSize, body, body.Verify); err != nil {
		if verr := body.Failure(); verr != nil {
			return nil, verr
		}
		return nil, err
	}

	return &Artifact{
		PublishedName: name,
		Size:          body.Len(),
		URL:           utils.JoinURL(a.publicURL, "files", name),
		Checksum:      body.Sum(),
	}, nil
}

func (a *Assembler) fail(ctx context.Context, sess *Session, cause error) {
	if _, err := a.store.Transition(ctx, sess.ID, Transition{
		From:      StatusAssembling,
		To:        StatusFailed,
		Reason:    cause.Error(),
		ExpiresAt: a.now().Add(a.retention),
	}); err != nil {
		slog.Error("upload assembly: mark failed", "session", sess.ID, "error", err)
	}
	if err := a.chunks.DeleteAll(ctx, sess.ID); err != nil {
		slog.Warn("upload assembly: remove staged chunks", "session", sess.ID, "error", err)
	}
}

// publishedName prefixes the sanitised name with the start of the session id
func publishedName(id, safeName string) string {
	prefix := id
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return prefix + "-" + safeName
}
