package downloader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/types"
)

const (
	stagingDirName   = ".staging"
	metadataFileName = "metadata.json"
	mediaBaseName    = "video"
)

// mediaExtensions are every media variant an artifact directory may hold.
var mediaExtensions = []string{".mp4", ".webm"}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ArtifactID names the artifact directory for a target after its video id.
// A URL without one is refused with ReasonInvalidTarget; ordinals shift
// between runs and cannot key an artifact.
func ArtifactID(t types.Target) (string, error) {
	if id := unsafeIDChars.ReplaceAllString(t.VideoID(), ""); id != "" {
		return id, nil
	}
	return "", types.NewTargetError(types.ReasonInvalidTarget, t.URL, errors.New("no video id in URL"))
}

// ArtifactStore owns the output root. A directory under the root either
// holds a complete media file plus metadata.json or does not exist.
// Files are staged under <root>/.staging and renamed into place, so the
// staging area must live on the same filesystem as the root.
type ArtifactStore struct {
	root    string
	staging string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewArtifactStore creates the output root and its staging area. Leftover
// staging files from an interrupted run are removed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	staging := filepath.Join(root, stagingDirName)
	if err := os.RemoveAll(staging); err != nil {
		log.Warn().Err(err).Str("path", staging).Msg("Failed to clear stale staging area")
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging area: %w", types.ErrArtifactWrite, err)
	}
	return &ArtifactStore{
		root:    root,
		staging: staging,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the output root.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Dir returns the artifact directory path for id.
func (s *ArtifactStore) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Exists reports whether a committed media file is present for id.
func (s *ArtifactStore) Exists(id string) bool {
	for _, ext := range mediaExtensions {
		if _, err := os.Stat(filepath.Join(s.Dir(id), mediaBaseName+ext)); err == nil {
			return true
		}
	}
	return false
}

// lock serializes commits for one id. Duplicate target URLs map to the
// same directory and must not interleave.
func (s *ArtifactStore) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Stage opens a new staging file for id. The caller writes the media body
// into it and hands its path to Commit, or removes it on failure.
func (s *ArtifactStore) Stage(id string) (*os.File, error) {
	f, err := os.CreateTemp(s.staging, id+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("%w: stage: %w", types.ErrArtifactWrite, err)
	}
	return f, nil
}

// Commit moves a staged media file into the artifact directory for id
// alongside metadata.json and returns the final media path. The staged
// file is consumed whether or not the commit succeeds.
func (s *ArtifactStore) Commit(id, stagedPath, ext string, md types.Metadata) (string, error) {
	defer func() { _ = os.Remove(stagedPath) }()

	mdBytes, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode metadata: %w", types.ErrArtifactWrite, err)
	}

	unlock := s.lock(id)
	defer unlock()

	final := s.Dir(id)
	mediaName := mediaBaseName + ext

	if _, err := os.Stat(final); errors.Is(err, fs.ErrNotExist) {
		path, err := s.commitNew(id, final, stagedPath, mediaName, mdBytes)
		if err == nil {
			return path, nil
		}
		// Another process may have created the directory in between.
		if _, statErr := os.Stat(final); statErr != nil {
			return "", err
		}
	}
	return s.replaceExisting(final, stagedPath, mediaName, mdBytes)
}

// CommitBytes writes recorded bytes through the same staging path as a
// downloaded body.
func (s *ArtifactStore) CommitBytes(id string, data []byte, ext string, md types.Metadata) (string, error) {
	f, err := s.Stage(id)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: write capture: %w", types.ErrArtifactWrite, err)
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: close capture: %w", types.ErrArtifactWrite, err)
	}
	return s.Commit(id, name, ext, md)
}

// commitNew assembles the whole directory in staging and renames it into
// place in one step.
func (s *ArtifactStore) commitNew(id, final, stagedPath, mediaName string, mdBytes []byte) (string, error) {
	tmpDir, err := os.MkdirTemp(s.staging, id+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: stage directory: %w", types.ErrArtifactWrite, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	if err := os.Rename(stagedPath, filepath.Join(tmpDir, mediaName)); err != nil {
		return "", fmt.Errorf("%w: move media: %w", types.ErrArtifactWrite, err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, metadataFileName), mdBytes, 0o644); err != nil {
		return "", fmt.Errorf("%w: write metadata: %w", types.ErrArtifactWrite, err)
	}
	if err := os.Rename(tmpDir, final); err != nil {
		// Hand the media back so the caller can fall back to replacing.
		_ = os.Rename(filepath.Join(tmpDir, mediaName), stagedPath)
		return "", fmt.Errorf("%w: commit directory: %w", types.ErrArtifactWrite, err)
	}
	committed = true
	return filepath.Join(final, mediaName), nil
}

// replaceExisting swaps each file of an existing directory individually.
// Every file is replaced by rename, so readers see either the old or the
// new version, never a partial file.
func (s *ArtifactStore) replaceExisting(final, stagedPath, mediaName string, mdBytes []byte) (string, error) {
	mediaPath := filepath.Join(final, mediaName)
	if err := os.Rename(stagedPath, mediaPath); err != nil {
		return "", fmt.Errorf("%w: replace media: %w", types.ErrArtifactWrite, err)
	}
	if err := writeFileAtomic(filepath.Join(final, metadataFileName), mdBytes, 0o644); err != nil {
		return "", fmt.Errorf("%w: replace metadata: %w", types.ErrArtifactWrite, err)
	}
	for _, ext := range mediaExtensions {
		other := mediaBaseName + ext
		if other == mediaName {
			continue
		}
		if err := os.Remove(filepath.Join(final, other)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", filepath.Join(final, other)).Msg("Failed to remove stale media variant")
		}
	}
	return mediaPath, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// SaveCapture persists a result whose locator holds recorded playback
// bytes. It never returns nil.
func (s *ArtifactStore) SaveCapture(res *types.ExtractionResult) *types.DownloadOutcome {
	if !res.Locator.IsCaptured() {
		return types.FailedOutcome(res.Target, types.ReasonNoFetchableLocator, types.ErrEmptyLocator)
	}
	id, err := ArtifactID(res.Target)
	if err != nil {
		return types.FailedOutcome(res.Target, types.ReasonInvalidTarget, err)
	}
	ext := res.Locator.Extension
	if ext == "" {
		ext = ".webm"
	}
	path, err := s.CommitBytes(id, res.Locator.Captured, ext, res.Metadata)
	if err != nil {
		log.Error().Err(err).Int("ordinal", res.Target.Ordinal).Msg("Failed to persist captured media")
		return types.FailedOutcome(res.Target, types.ReasonWriteError, types.NewTargetError(types.ReasonWriteError, res.Target.URL, err))
	}
	log.Info().
		Int("ordinal", res.Target.Ordinal).
		Str("path", path).
		Int("bytes", len(res.Locator.Captured)).
		Msg("Captured media saved")
	return &types.DownloadOutcome{Target: res.Target, Success: true, Path: path, Size: int64(len(res.Locator.Captured))}
}
