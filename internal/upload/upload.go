// Package upload implements the resumable chunked-upload assembler (C9):
// a session tracked in the shared cache, chunks landing in a temp
// namespace, and a sequential-streaming completion that assembles them
// into one asset.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"videopipe/internal/apierrors"
	"videopipe/internal/cache"
	"videopipe/internal/mediatool"
	"videopipe/internal/models"
	"videopipe/internal/objectstore"
	"videopipe/internal/repositories"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const sessionTTL = time.Hour

// Session is the ephemeral multi-part upload state from spec.md §3.
type Session struct {
	ID            string  `json:"id"`
	OwnerID       int64   `json:"owner_id"`
	Filename      string  `json:"filename"`
	TotalSize     int64   `json:"total_size"`
	TotalChunks   int     `json:"total_chunks"`
	MediaType     string  `json:"media_type"`
	ReceivedSet   []int   `json:"received_set"`
	CreatedAt     time.Time `json:"created_at"`
}

func sessionKey(uploadID string) string {
	return "upload:session:" + uploadID
}

func chunkObjectName(uploadID string, index int) string {
	return fmt.Sprintf("temp/chunks/%s_%d", uploadID, index)
}

// Assembler implements initiate/put_chunk/complete/abort over a shared
// cache (session bookkeeping) and object store (chunk + final bytes).
type Assembler struct {
	cache  *cache.Cache
	store  objectstore.Store
	assets *repositories.AssetRepository
	tool   *mediatool.Builder
	probes *cache.ProbeCache
}

// New constructs an Assembler. tool/probes back the ingest-time probe step
// Complete runs on every assembled asset; either may be nil to skip it
// (tests exercising the chunk-bookkeeping paths don't need a real tool).
func New(c *cache.Cache, store objectstore.Store, assets *repositories.AssetRepository, tool *mediatool.Builder, probes *cache.ProbeCache) *Assembler {
	return &Assembler{cache: c, store: store, assets: assets, tool: tool, probes: probes}
}

// Initiate creates a new upload session, returning its id.
func (a *Assembler) Initiate(ctx context.Context, ownerID int64, filename string, totalSize int64, totalChunks int, mediaType string) (string, error) {
	if totalSize <= 0 || totalChunks <= 0 {
		return "", apierrors.NewValidation("upload: total_size and total_chunks must be positive")
	}
	id := uuid.NewString()
	session := Session{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		MediaType:   mediaType,
		ReceivedSet: []int{},
		CreatedAt:   time.Now(),
	}
	if err := a.cache.Set(ctx, sessionKey(id), session, sessionTTL); err != nil {
		return "", err
	}
	return id, nil
}

// PutChunk stores one chunk's bytes and records it received in the
// session. index must be in [0, total_chunks).
func (a *Assembler) PutChunk(ctx context.Context, uploadID string, index int, r io.Reader, size int64) error {
	session, err := a.load(ctx, uploadID)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.TotalChunks {
		return apierrors.NewValidation("upload: chunk index %d out of range [0,%d)", index, session.TotalChunks)
	}

	if err := a.store.PutStream(ctx, chunkObjectName(uploadID, index), r, size, session.MediaType); err != nil {
		return err
	}

	if !containsInt(session.ReceivedSet, index) {
		session.ReceivedSet = append(session.ReceivedSet, index)
		sort.Ints(session.ReceivedSet)
	}
	return a.cache.Set(ctx, sessionKey(uploadID), session, sessionTTL)
}

// Complete validates every chunk index 0..total-1 is present, assembles
// them in order via sequential streaming concatenation into one object,
// creates the Asset record, deletes every chunk object, and deletes the
// session.
func (a *Assembler) Complete(ctx context.Context, uploadID string) (*models.Asset, error) {
	session, err := a.load(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if !isComplete(session.ReceivedSet, session.TotalChunks) {
		return nil, apierrors.NewValidation("upload: %s missing chunks (have %d/%d)", uploadID, len(session.ReceivedSet), session.TotalChunks)
	}

	// Verify every chunk object still exists before committing to the
	// assembly, concurrently since these are independent HEAD checks.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < session.TotalChunks; i++ {
		i := i
		g.Go(func() error {
			ok, err := a.store.Exists(gctx, chunkObjectName(uploadID, i))
			if err != nil {
				return err
			}
			if !ok {
				return apierrors.NewValidation("upload: chunk %d missing from store", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	assembleErrCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		assembleErrCh <- a.streamChunks(ctx, uploadID, session.TotalChunks, pw)
	}()

	finalName := fmt.Sprintf("assets/%d/%s_%s", session.OwnerID, uploadID, session.Filename)
	if err := a.store.PutStream(ctx, finalName, pr, session.TotalSize, session.MediaType); err != nil {
		pr.CloseWithError(err)
		<-assembleErrCh
		return nil, err
	}
	if err := <-assembleErrCh; err != nil {
		_ = a.store.Delete(ctx, finalName)
		return nil, err
	}

	probed, err := a.probeUploaded(ctx, finalName)
	if err != nil {
		_ = a.store.Delete(ctx, finalName)
		return nil, err
	}

	asset := &models.Asset{
		OwnerID:       session.OwnerID,
		DisplayName:   session.Filename,
		ObjectName:    finalName,
		SizeBytes:     session.TotalSize,
		MediaType:     session.MediaType,
		ProbeMetadata: probed,
		CreatedAt:     time.Now(),
	}
	if err := a.assets.Create(ctx, asset); err != nil {
		_ = a.store.Delete(ctx, finalName)
		return nil, fmt.Errorf("upload: create asset record: %w", err)
	}
	if probed != nil && a.probes != nil {
		_ = a.probes.Set(ctx, asset.ID, finalName, *probed)
	}

	a.cleanupChunks(ctx, uploadID, session.TotalChunks)
	_ = a.cache.Delete(ctx, sessionKey(uploadID))
	return asset, nil
}

// probeUploaded streams the just-assembled object back from the store into
// a local temp file and probes it, so the asset record is created with
// metadata already populated. Returns (nil, nil) when no tool is wired.
func (a *Assembler) probeUploaded(ctx context.Context, objectName string) (*models.ProbeResult, error) {
	if a.tool == nil {
		return nil, nil
	}
	rc, err := a.store.GetStream(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "upload-probe-*")
	if err != nil {
		return nil, fmt.Errorf("upload: create probe temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, rc); err != nil {
		return nil, apierrors.NewTransient(err, "upload: stream asset back for probing")
	}

	result, err := a.tool.Probe(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// streamChunks copies each chunk object's bytes, in index order, into w.
func (a *Assembler) streamChunks(ctx context.Context, uploadID string, total int, w io.Writer) error {
	for i := 0; i < total; i++ {
		rc, err := a.store.GetStream(ctx, chunkObjectName(uploadID, i))
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(w, rc)
		rc.Close()
		if copyErr != nil {
			return apierrors.NewTransient(copyErr, "upload: stream chunk %d", i)
		}
	}
	return nil
}

// Abort deletes every chunk object referenced by the session and the
// session itself, best-effort across chunks.
func (a *Assembler) Abort(ctx context.Context, uploadID string) error {
	session, err := a.load(ctx, uploadID)
	if err != nil {
		return err
	}
	a.cleanupChunks(ctx, uploadID, session.TotalChunks)
	return a.cache.Delete(ctx, sessionKey(uploadID))
}

func (a *Assembler) cleanupChunks(ctx context.Context, uploadID string, total int) {
	for i := 0; i < total; i++ {
		_ = a.store.Delete(ctx, chunkObjectName(uploadID, i))
	}
}

func (a *Assembler) load(ctx context.Context, uploadID string) (Session, error) {
	var session Session
	if err := a.cache.Get(ctx, sessionKey(uploadID), &session); err != nil {
		if err == cache.ErrMiss {
			return Session{}, apierrors.NewNotFound("upload_session", uploadID)
		}
		return Session{}, err
	}
	return session, nil
}

func isComplete(received []int, total int) bool {
	if len(received) != total {
		return false
	}
	seen := make([]bool, total)
	for _, idx := range received {
		if idx < 0 || idx >= total {
			return false
		}
		seen[idx] = true
	}
	for _, ok := range seen {
		if !ok {
			return false
		}
	}
	return true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// DownloadRange implements get_range's 206 Partial Content semantics by
// delegating to the object store's ranged read; returned alongside the
// total size so callers can emit Content-Range: bytes S-E/T.
func DownloadRange(ctx context.Context, store objectstore.Store, objectName string, start, endInclusive int64) ([]byte, int64, error) {
	info, err := store.Stat(ctx, objectName)
	if err != nil {
		return nil, 0, err
	}
	b, err := store.GetRange(ctx, objectName, start, endInclusive)
	if err != nil {
		return nil, 0, err
	}
	return b, info.Size, nil
}

