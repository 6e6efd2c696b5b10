package selectors

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ReloadStats contains statistics about selector reloads.
type ReloadStats struct {
	LastReloadTime time.Time
	ReloadCount    int64
	LastError      error
}

// Manager provides hot-reload capable selector management.
// It maintains embedded default selectors and optionally watches an external
// file for runtime updates. Reads are lock-free using atomic.Value, so a
// long run picks up tuned CDN patterns without restarting the session pool.
type Manager struct {
	embedded     *Selectors   // Compiled-in defaults (immutable)
	current      atomic.Value // *Selectors
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // Protects reload operations
	stats        ReloadStats
	closed       bool
}

// NewManager creates a new Manager.
// If externalPath is empty, only embedded selectors are used.
// If hotReload is true and externalPath is set, file changes trigger reloads.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded:     Get(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath == "" {
		return m, nil
	}

	if err := m.loadExternal(); err != nil {
		log.Warn().
			Err(err).
			Str("path", externalPath).
			Msg("Failed to load external selectors, using embedded defaults")
	} else {
		log.Info().
			Str("path", externalPath).
			Msg("Loaded external selectors file")
	}

	if hotReload {
		if err := m.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to start file watcher, hot-reload disabled")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Hot-reload enabled for selectors file")
		}
	}

	return m, nil
}

// Static returns a Manager that always serves s. Useful when patterns come
// from code rather than a file.
func Static(s *Selectors) *Manager {
	m := &Manager{
		embedded: s,
		stopCh:   make(chan struct{}),
	}
	m.current.Store(s)
	return m
}

// Get returns the current Selectors instance.
// This is a lock-free O(1) operation safe for concurrent use.
func (m *Manager) Get() *Selectors {
	return m.current.Load().(*Selectors)
}

// Reload manually reloads selectors from the external file.
// On failure, the previous selectors remain in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return fmt.Errorf("no external selectors path configured")
	}

	return m.loadExternalLocked()
}

// Stats returns the current reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close stops the file watcher and cleans up resources.
// Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadExternalLocked()
}

// loadExternalLocked loads selectors from the external file.
// Must be called with m.mu held.
func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to read selectors file: %w", err)
	}

	selectors, err := parseAndValidate(data)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to parse selectors file: %w", err)
	}

	m.current.Store(m.mergeWithEmbedded(selectors))

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Selectors reloaded")

	return nil
}

func parseAndValidate(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// mergeWithEmbedded overlays external on the embedded defaults field by field.
func (m *Manager) mergeWithEmbedded(external *Selectors) *Selectors {
	pick := func(ext, def []string) []string {
		if len(ext) > 0 {
			return ext
		}
		return def
	}

	merged := &Selectors{
		MediaElement:       external.MediaElement,
		CDNHosts:           pick(external.CDNHosts, m.embedded.CDNHosts),
		CDNPathHints:       pick(external.CDNPathHints, m.embedded.CDNPathHints),
		ExcludedExtensions: pick(external.ExcludedExtensions, m.embedded.ExcludedExtensions),
		EmbeddedURLFields:  pick(external.EmbeddedURLFields, m.embedded.EmbeddedURLFields),
		CaptionFields:      pick(external.CaptionFields, m.embedded.CaptionFields),
		NicknameFields:     pick(external.NicknameFields, m.embedded.NicknameFields),
		CaptionSelectors:   pick(external.CaptionSelectors, m.embedded.CaptionSelectors),
		NicknameSelectors:  pick(external.NicknameSelectors, m.embedded.NicknameSelectors),
	}
	if merged.MediaElement == "" {
		merged.MediaElement = m.embedded.MediaElement
	}
	return merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors often save by writing a new file and renaming it over the
	// old one, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(m.externalPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch selectors directory: %w", err)
	}

	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()

	return nil
}

// watchFile reloads when the selectors file is written or a new one is
// moved into place. Reloads are debounced so a multi-step save reloads once.
func (m *Manager) watchFile() {
	defer m.wg.Done()

	target := filepath.Clean(m.externalPath)

	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Selectors file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := m.Reload(); err != nil {
					log.Warn().
						Err(err).
						Str("path", m.externalPath).
						Msg("Hot-reload failed, keeping previous selectors")
				}
			})

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
