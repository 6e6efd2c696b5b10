// Package selectors provides media discovery pattern loading and management.
package selectors

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains all patterns used to find media and metadata on a page.
type Selectors struct {
	MediaElement       string   `yaml:"media_element"`
	CDNHosts           []string `yaml:"cdn_hosts"`
	CDNPathHints       []string `yaml:"cdn_path_hints"`
	ExcludedExtensions []string `yaml:"excluded_extensions"`
	EmbeddedURLFields  []string `yaml:"embedded_url_fields"`
	CaptionFields      []string `yaml:"caption_fields"`
	NicknameFields     []string `yaml:"nickname_fields"`
	CaptionSelectors   []string `yaml:"caption_selectors"`
	NicknameSelectors  []string `yaml:"nickname_selectors"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance.
// Patterns are loaded from the embedded selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("cdn_hosts", len(s.CDNHosts)).
		Int("embedded_url_fields", len(s.EmbeddedURLFields)).
		Msg("Selectors loaded")

	return &s, nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	return &Selectors{
		MediaElement:       "video",
		CDNHosts:           []string{"tiktokcdn", "byteicdn", "ibytedtos"},
		CDNPathHints:       []string{"/video", "play"},
		ExcludedExtensions: []string{".js", ".css", ".json", ".png", ".jpg", ".webp"},
		EmbeddedURLFields:  []string{"playAddr", "downloadAddr"},
		CaptionFields:      []string{"desc"},
		NicknameFields:     []string{"nickname"},
		CaptionSelectors: []string{
			`[data-e2e="browse-video-desc"]`,
			`[data-e2e="video-desc"]`,
		},
	}
}

// Validate checks that the Selectors can drive discovery at all.
func (s *Selectors) Validate() error {
	if len(s.CDNHosts) == 0 && len(s.EmbeddedURLFields) == 0 {
		return fmt.Errorf("selectors must have at least one pattern in cdn_hosts or embedded_url_fields")
	}
	return nil
}

// IsCDNHost reports whether rawURL points at one of the known media CDNs.
func (s *Selectors) IsCDNHost(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, h := range s.CDNHosts {
		if strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// HasPathHint reports whether rawURL looks like a media path rather than
// an API or asset path on the same CDN.
func (s *Selectors) HasPathHint(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, h := range s.CDNPathHints {
		if strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// IsExcludedAsset reports whether rawURL carries a non-media extension.
// Matching is on substrings since CDN URLs append signatures after the path.
func (s *Selectors) IsExcludedAsset(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range s.ExcludedExtensions {
		if strings.Contains(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
