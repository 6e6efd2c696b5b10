package extractor

import (
	"sort"
	"strings"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/selectors"
)

// Candidate is a network response that may be the full media asset.
type Candidate struct {
	URL string
	// Size is the declared full size in bytes, -1 when unknown.
	Size int64
	// VideoType is true when the response's content-type confirmed video.
	VideoType bool
}

// sniff filters observed responses down to media candidates. A response
// qualifies on a video content-type, or on a known CDN host with a media
// path hint and no asset extension. Duplicate URLs (range requests for the
// same asset) collapse into one candidate keeping the largest size.
func sniff(events []browser.NetworkEvent, sel *selectors.Selectors) []Candidate {
	byURL := make(map[string]int, len(events))
	out := make([]Candidate, 0, 4)

	for _, ev := range events {
		if ev.URL == "" || strings.HasPrefix(ev.URL, "blob:") || strings.HasPrefix(ev.URL, "data:") {
			continue
		}
		if ev.Status >= 400 {
			continue
		}
		videoType := strings.Contains(strings.ToLower(ev.ContentType), "video")
		heuristic := sel.IsCDNHost(ev.URL) && sel.HasPathHint(ev.URL) && !sel.IsExcludedAsset(ev.URL)
		if !videoType && !heuristic {
			continue
		}

		if i, ok := byURL[ev.URL]; ok {
			if ev.ContentLength > out[i].Size {
				out[i].Size = ev.ContentLength
			}
			out[i].VideoType = out[i].VideoType || videoType
			continue
		}
		byURL[ev.URL] = len(out)
		out = append(out, Candidate{URL: ev.URL, Size: ev.ContentLength, VideoType: videoType})
	}
	return out
}

// selectCandidate picks the media locator among candidates.
//
// Largest declared size above minBytes wins: thumbnails, manifests and
// preview clips are reliably smaller than the full asset. Candidates of
// unknown size rank below every sized candidate and are only used when
// nothing sized qualifies and their content-type confirmed video. With
// requireVideoType set, only content-type confirmed candidates count.
func selectCandidate(cands []Candidate, minBytes int64, requireVideoType bool) (Candidate, bool) {
	sized := make([]Candidate, 0, len(cands))
	var unknown []Candidate
	for _, c := range cands {
		if requireVideoType && !c.VideoType {
			continue
		}
		switch {
		case c.Size > minBytes:
			sized = append(sized, c)
		case c.Size < 0 && c.VideoType:
			unknown = append(unknown, c)
		}
	}

	if len(sized) > 0 {
		// Stable so the first-seen candidate wins a size tie.
		sort.SliceStable(sized, func(i, j int) bool { return sized[i].Size > sized[j].Size })
		return sized[0], true
	}
	if len(unknown) > 0 {
		return unknown[0], true
	}
	return Candidate{}, false
}
