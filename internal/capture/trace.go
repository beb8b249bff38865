// Package capture records the portal's network traffic while a batch
// runs, producing one JSONL trace line per request lifecycle event.
package capture

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Sink receives trace records. storage.TraceWriter satisfies it.
type Sink interface {
	Write(record any) error
}

// NetworkEvent is one trace line. Kind is request, response, or failure.
type NetworkEvent struct {
	Time      time.Time         `json:"time"`
	Kind      string            `json:"kind"`
	RequestID string            `json:"request_id"`
	Method    string            `json:"method,omitempty"`
	URL       string            `json:"url,omitempty"`
	Status    int64             `json:"status,omitempty"`
	MimeType  string            `json:"mime_type,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	ErrorText string            `json:"error_text,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	PostData  string            `json:"post_data,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	FullSize  int               `json:"full_size,omitempty"`
	SHA256    string            `json:"sha256,omitempty"`
}

// AttachNetwork subscribes to CDP network events on the tab context and
// forwards one record per request, response, and failure to sink. Post
// data longer than maxPostBytes is truncated and annotated with its
// original size and hash.
func AttachNetwork(ctx context.Context, sink Sink, maxPostBytes int) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			rec := NetworkEvent{
				Time:      time.Now().UTC(),
				Kind:      "request",
				RequestID: string(e.RequestID),
				Method:    e.Request.Method,
				URL:       e.Request.URL,
				Headers:   headerMapToStringMap(e.Request.Headers),
			}
			if e.Request.HasPostData {
				post, truncated, fullSize, hash := truncateStringBytes(decodePostData(e.Request), maxPostBytes)
				rec.PostData = post
				rec.Truncated = truncated
				if truncated {
					rec.FullSize = fullSize
					rec.SHA256 = hash
				}
			}
			sink.Write(rec)

		case *network.EventResponseReceived:
			sink.Write(NetworkEvent{
				Time:      time.Now().UTC(),
				Kind:      "response",
				RequestID: string(e.RequestID),
				URL:       e.Response.URL,
				Status:    e.Response.Status,
				MimeType:  e.Response.MimeType,
				Resource:  string(e.Type),
				Headers:   headerMapToStringMap(e.Response.Headers),
			})

		case *network.EventLoadingFailed:
			sink.Write(NetworkEvent{
				Time:      time.Now().UTC(),
				Kind:      "failure",
				RequestID: string(e.RequestID),
				Resource:  string(e.Type),
				ErrorText: e.ErrorText,
			})
		}
	})
}

// decodePostData reassembles the request body from its base64 entries.
// Entries that fail to decode are kept raw.
func decodePostData(req *network.Request) string {
	var parts []byte
	for _, entry := range req.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			parts = append(parts, []byte(entry.Bytes)...)
		} else {
			parts = append(parts, decoded...)
		}
	}
	return string(parts)
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
