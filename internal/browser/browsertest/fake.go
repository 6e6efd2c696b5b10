// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// ErrOverlap is returned when two operations run on one FakeSession at once.
var ErrOverlap = errors.New("concurrent operations on one session")

// Page scripts what a FakeSession sees after navigating to a URL.
type Page struct {
	// NavigateErr is returned by Navigate.
	NavigateErr error
	// MediaAfterPolls is the number of has-media polls that report absent
	// before the element appears. Negative means it never appears.
	MediaAfterPolls int
	HTML            string
	Events          []browser.NetworkEvent
	Media           browser.MediaInfo

	// Captured is what the in-page recorder produces.
	Captured []byte
	// CaptureError is reported by the recorder instead of data.
	CaptureError string
	// CaptureStatusPolls is how many status polls report in-progress
	// before completion. Negative means capture never completes.
	CaptureStatusPolls int
}

// FakeSession implements browser.Session from scripted pages.
type FakeSession struct {
	SessionID int
	Pages     map[string]*Page
	// Default is used for URLs with no entry in Pages.
	Default   *Page
	CookieJar []types.Cookie

	mu          sync.Mutex
	current     *Page
	mediaPolls  int
	statusPolls int
	navigations []string
	played      bool
	captureReq  *browser.Request

	busy    atomic.Bool
	overlap atomic.Bool
	closed  atomic.Int32
}

var _ browser.Session = (*FakeSession)(nil)

// NewFakeSession returns a session whose every URL maps to page.
func NewFakeSession(id int, page *Page) *FakeSession {
	return &FakeSession{SessionID: id, Default: page, Pages: map[string]*Page{}}
}

func (f *FakeSession) enter() func() {
	if !f.busy.CompareAndSwap(false, true) {
		f.overlap.Store(true)
		return func() {}
	}
	return func() { f.busy.Store(false) }
}

func (f *FakeSession) ID() int { return f.SessionID }

func (f *FakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.mediaPolls = 0
	f.statusPolls = 0
	f.played = false
	f.captureReq = nil

	page, ok := f.Pages[url]
	if !ok {
		page = f.Default
	}
	if page == nil {
		page = &Page{MediaAfterPolls: -1}
	}
	f.current = page
	return page.NavigateErr
}

func (f *FakeSession) Evaluate(ctx context.Context, req browser.Request) (*browser.Response, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.current
	if page == nil {
		page = &Page{MediaAfterPolls: -1}
	}

	present := page.MediaAfterPolls >= 0 && f.mediaPolls >= page.MediaAfterPolls
	switch req.Kind {
	case browser.ScriptHasMedia:
		f.mediaPolls++
		return &browser.Response{Present: present}, nil
	case browser.ScriptPlayMuted:
		f.played = present
		return &browser.Response{Present: present}, nil
	case browser.ScriptPageHTML:
		return &browser.Response{HTML: page.HTML}, nil
	case browser.ScriptMediaInfo:
		info := page.Media
		info.Found = present
		return &browser.Response{Media: info}, nil
	case browser.ScriptStartCapture:
		r := req
		f.captureReq = &r
		if !present {
			return &browser.Response{Capture: browser.CaptureStatus{Complete: true, Error: "no media element"}}, nil
		}
		return &browser.Response{Capture: browser.CaptureStatus{Started: true}}, nil
	case browser.ScriptCaptureStatus:
		f.statusPolls++
		done := page.CaptureStatusPolls >= 0 && f.statusPolls > page.CaptureStatusPolls
		st := browser.CaptureStatus{Started: true, Complete: done}
		if done {
			st.Error = page.CaptureError
			st.Size = int64(len(page.Captured))
		}
		return &browser.Response{Capture: st}, nil
	case browser.ScriptCaptureData:
		return &browser.Response{CapturedBase64: base64.StdEncoding.EncodeToString(page.Captured)}, nil
	default:
		return nil, types.ErrUnknownScript
	}
}

func (f *FakeSession) NetworkEvents() []browser.NetworkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	out := make([]browser.NetworkEvent, len(f.current.Events))
	copy(out, f.current.Events)
	return out
}

func (f *FakeSession) Cookies(ctx context.Context) ([]types.Cookie, error) {
	defer f.enter()()
	out := make([]types.Cookie, len(f.CookieJar))
	copy(out, f.CookieJar)
	return out, nil
}

func (f *FakeSession) Close() error {
	f.closed.Add(1)
	return nil
}

// Navigations returns the URLs navigated to, in order.
func (f *FakeSession) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.navigations))
	copy(out, f.navigations)
	return out
}

// Played reports whether muted playback was started on the current page.
func (f *FakeSession) Played() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played
}

// CaptureRequest returns the last capture start request, or nil.
func (f *FakeSession) CaptureRequest() *browser.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureReq
}

// Overlapped reports whether two operations ever ran concurrently.
func (f *FakeSession) Overlapped() bool { return f.overlap.Load() }

// Closed returns how many times Close was called.
func (f *FakeSession) Closed() int { return int(f.closed.Load()) }
