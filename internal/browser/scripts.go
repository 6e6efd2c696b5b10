package browser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ysmood/gson"

	"github.com/Rorqualx/clipharvest/internal/types"
)

const defaultMediaSelector = "video"

// captureChunkSize is the slice size used when converting the recording to a
// binary string in-page. Larger slices overflow String.fromCharCode's
// argument limit.
const captureChunkSize = 32768

// captureBitrate is the recorder's target video bitrate.
const captureBitrate = 5_000_000

const hasMediaJS = `(() => {
	const v = document.querySelector(%[1]s);
	return { present: !!v };
})()`

const playMutedJS = `(() => {
	const v = document.querySelector(%[1]s);
	if (!v) return { present: false };
	v.muted = true;
	try {
		const p = v.play();
		if (p && p.catch) p.catch(() => {});
	} catch (e) {}
	return { present: true };
})()`

const pageHTMLJS = `document.documentElement ? document.documentElement.outerHTML : ''`

const mediaInfoJS = `(() => {
	const v = document.querySelector(%[1]s);
	if (!v) return { found: false };
	return {
		found: true,
		duration: isFinite(v.duration) ? v.duration : 0,
		width: v.videoWidth || 0,
		height: v.videoHeight || 0
	};
})()`

const startCaptureJS = `(() => {
	const v = document.querySelector(%[1]s);
	if (!v) return { started: false, error: 'no media element' };

	window.__captureData = null;
	window.__captureSize = 0;
	window.__captureComplete = false;
	window.__captureError = null;

	const fail = (msg) => {
		window.__captureError = msg;
		window.__captureComplete = true;
		return { started: false, error: msg };
	};

	let stream;
	try {
		stream = v.captureStream ? v.captureStream() : v.mozCaptureStream();
	} catch (e) {
		return fail('captureStream: ' + e.message);
	}

	const chunks = [];
	let rec;
	try {
		rec = new MediaRecorder(stream, { mimeType: 'video/webm', videoBitsPerSecond: %[3]d });
	} catch (e) {
		return fail('MediaRecorder: ' + e.message);
	}

	rec.ondataavailable = (e) => {
		if (e.data && e.data.size > 0) {
			chunks.push(e.data);
			window.__captureSize += e.data.size;
		}
	};
	rec.onerror = (e) => {
		window.__captureError = 'recorder: ' + (e.error ? e.error.message : 'unknown');
	};
	rec.onstop = async () => {
		try {
			const blob = new Blob(chunks, { type: 'video/webm' });
			const buf = new Uint8Array(await blob.arrayBuffer());
			let bin = '';
			for (let i = 0; i < buf.length; i += %[4]d) {
				bin += String.fromCharCode.apply(null, buf.subarray(i, i + %[4]d));
			}
			window.__captureData = btoa(bin);
			window.__captureSize = buf.length;
		} catch (e) {
			window.__captureError = 'encode: ' + e.message;
		}
		window.__captureComplete = true;
	};

	const stop = () => { if (rec.state !== 'inactive') rec.stop(); };
	v.onended = stop;
	setTimeout(stop, %[2]d);

	v.loop = false;
	v.muted = true;
	v.currentTime = 0;
	rec.start(500);
	try {
		const p = v.play();
		if (p && p.catch) p.catch((e) => { window.__captureError = 'play: ' + e.message; stop(); });
	} catch (e) {
		window.__captureError = 'play: ' + e.message;
		stop();
	}
	return { started: true };
})()`

const captureStatusJS = `({
	started: window.__captureComplete !== undefined,
	complete: !!window.__captureComplete,
	error: window.__captureError || '',
	size: window.__captureSize || 0
})`

// Reading the data clears it so the page does not hold two copies.
const captureDataJS = `(() => {
	const d = window.__captureData || '';
	window.__captureData = null;
	return d;
})()`

// expression renders the JavaScript for req.
func (req Request) expression() (string, error) {
	sel := req.MediaSelector
	if sel == "" {
		sel = defaultMediaSelector
	}
	quoted, err := json.Marshal(sel)
	if err != nil {
		return "", fmt.Errorf("quote selector: %w", err)
	}
	q := string(quoted)

	switch req.Kind {
	case ScriptHasMedia:
		return fmt.Sprintf(hasMediaJS, q), nil
	case ScriptPlayMuted:
		return fmt.Sprintf(playMutedJS, q), nil
	case ScriptPageHTML:
		return pageHTMLJS, nil
	case ScriptMediaInfo:
		return fmt.Sprintf(mediaInfoJS, q), nil
	case ScriptStartCapture:
		ceiling := req.CaptureCeiling
		if ceiling <= 0 {
			ceiling = time.Minute
		}
		return fmt.Sprintf(startCaptureJS, q, ceiling.Milliseconds(), captureBitrate, captureChunkSize), nil
	case ScriptCaptureStatus:
		return captureStatusJS, nil
	case ScriptCaptureData:
		return captureDataJS, nil
	default:
		return "", fmt.Errorf("%w: %d", types.ErrUnknownScript, req.Kind)
	}
}

// decodeResponse maps the by-value result of a script onto a Response.
func decodeResponse(kind ScriptKind, v gson.JSON) (*Response, error) {
	resp := &Response{}
	switch kind {
	case ScriptHasMedia, ScriptPlayMuted:
		resp.Present = v.Get("present").Bool()
	case ScriptPageHTML:
		if !v.Nil() {
			resp.HTML = v.Str()
		}
	case ScriptMediaInfo:
		resp.Media = MediaInfo{
			Found:    v.Get("found").Bool(),
			Duration: time.Duration(v.Get("duration").Num() * float64(time.Second)),
			Width:    v.Get("width").Int(),
			Height:   v.Get("height").Int(),
		}
	case ScriptStartCapture, ScriptCaptureStatus:
		resp.Capture = CaptureStatus{
			Started:  v.Get("started").Bool(),
			Complete: v.Get("complete").Bool(),
			Error:    strField(v, "error"),
			Size:     int64(v.Get("size").Num()),
		}
		if kind == ScriptStartCapture {
			// A start that fails synchronously is already complete.
			resp.Capture.Complete = !resp.Capture.Started
		}
	case ScriptCaptureData:
		if !v.Nil() {
			resp.CapturedBase64 = strings.TrimSpace(v.Str())
		}
	default:
		return nil, fmt.Errorf("%w: %d", types.ErrUnknownScript, kind)
	}
	return resp, nil
}

// strField reads an optional string field; absent and null read as "".
func strField(v gson.JSON, key string) string {
	f := v.Get(key)
	if f.Nil() {
		return ""
	}
	return f.Str()
}
