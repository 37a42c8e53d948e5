package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// FirebaseWriter appends entries over the Realtime Database REST surface:
// POST {base}/{session_id}.json pushes under a server-generated key.
type FirebaseWriter struct {
	client *resty.Client
	auth   string
}

func NewFirebaseWriter(baseURL, auth string) *FirebaseWriter {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(5 * time.Second)
	return &FirebaseWriter{client: c, auth: auth}
}

func (w *FirebaseWriter) Write(ctx context.Context, e Entry) error {
	req := w.client.R().SetContext(ctx).SetBody(e)
	if w.auth != "" {
		req.SetQueryParam("auth", w.auth)
	}
	resp, err := req.Post("/" + string(e.SessionID) + ".json")
	if err != nil {
		return fmt.Errorf("telemetry post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telemetry post: %s", resp.Status())
	}
	return nil
}

// LogWriter is the local-mode trail: entries go to the process log.
type LogWriter struct{}

func (LogWriter) Write(_ context.Context, e Entry) error {
	ev := log.Info().Str("module", "telemetry").
		Str("sid", string(e.SessionID)).
		Str("event", e.Event).
		Time("time", e.Time)
	if len(e.Payload) > 0 {
		ev = ev.RawJSON("payload", e.Payload)
	}
	ev.Msg("audit")
	return nil
}
