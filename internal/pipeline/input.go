package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/types"
)

// LoadTargets reads every input file in order and assigns ordinals across
// all of them.
func LoadTargets(paths ...string) ([]types.Target, error) {
	var urls []string
	for _, p := range paths {
		u, err := LoadURLs(p)
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", p).Int("urls", len(u)).Msg("Loaded input")
		urls = append(urls, u...)
	}
	if len(urls) == 0 {
		return nil, types.ErrNoTargets
	}
	return types.NewTargets(urls), nil
}

// LoadURLs reads one input file: a JSON list, a JSON object with a "urls"
// key, or newline-delimited text where only lines starting with "http"
// count. Malformed JSON is read as text.
func LoadURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		urls, err := parseJSON(trimmed)
		if err == nil {
			return urls, nil
		}
		log.Warn().Err(err).Str("file", path).Msg("Input is not valid JSON, reading as text")
	}
	return parseLines(data), nil
}

func parseJSON(data []byte) ([]string, error) {
	if data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return clean(list), nil
	}
	var doc struct {
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return clean(doc.URLs), nil
}

func parseLines(data []byte) []string {
	var urls []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "http") {
			urls = append(urls, line)
		}
	}
	return urls
}

func clean(list []string) []string {
	out := make([]string, 0, len(list))
	for _, u := range list {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
