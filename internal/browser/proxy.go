package browser

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// proxyCredentials splits an outbound proxy URL into the server part passed
// to --proxy-server (which rejects userinfo) and the credentials answered on
// auth challenges.
func proxyCredentials(raw string) (server, username, password string) {
	if raw == "" {
		return "", "", ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw, "", ""
	}
	username = u.User.Username()
	password, _ = u.User.Password()
	u.User = nil
	return u.String(), username, password
}

// interceptOptions selects what the Fetch domain intercepts on a page.
type interceptOptions struct {
	Username    string
	Password    string
	BlockImages bool
}

func (o interceptOptions) enabled() bool {
	return o.Username != "" || o.BlockImages
}

// startInterception answers proxy auth challenges and fails image and font
// requests when asked to. Media, scripts and XHR always continue: the
// sniffer needs them.
//
// Returns a cleanup function that MUST be called when the page is closed
// to prevent goroutine leaks from EachEvent listeners. The cleanup function
// is safe to call multiple times.
func startInterception(ctx context.Context, page *rod.Page, opts interceptOptions) (func(), error) {
	if !opts.enabled() {
		return func() {}, nil
	}

	auth := opts.Username != ""
	enable := proto.FetchEnable{HandleAuthRequests: auth}
	if !auth {
		// Without auth only the blocked types need to pause.
		enable.Patterns = blockedAssetPatterns()
	}
	if err := enable.Call(page); err != nil {
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageWithCtx := page.Context(listenerCtx)

	var wg sync.WaitGroup
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				log.Warn().Msg("Timeout waiting for request interception listeners to stop")
			}
		})
	}

	if auth {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pageWithCtx.EachEvent(func(e *proto.FetchAuthRequired) bool {
				select {
				case <-listenerCtx.Done():
					return true
				default:
				}
				log.Debug().Msg("Proxy authentication required, providing credentials")
				_ = proto.FetchContinueWithAuth{
					RequestID: e.RequestID,
					AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
						Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
						Username: opts.Username,
						Password: opts.Password,
					},
				}.Call(page)
				return false
			})()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pageWithCtx.EachEvent(func(e *proto.FetchRequestPaused) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			// Request may already be gone; errors are ignored.
			if opts.BlockImages && isBlockedAsset(e.ResourceType) {
				_ = proto.FetchFailRequest{
					RequestID:   e.RequestID,
					ErrorReason: proto.NetworkErrorReasonBlockedByClient,
				}.Call(page)
			} else {
				_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
			}
			return false
		})()
	}()

	return cleanup, nil
}

func isBlockedAsset(t proto.NetworkResourceType) bool {
	return t == proto.NetworkResourceTypeImage || t == proto.NetworkResourceTypeFont
}

func blockedAssetPatterns() []*proto.FetchRequestPattern {
	return []*proto.FetchRequestPattern{
		{URLPattern: "*", ResourceType: proto.NetworkResourceTypeImage},
		{URLPattern: "*", ResourceType: proto.NetworkResourceTypeFont},
	}
}
