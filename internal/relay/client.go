package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Watch dials a WebSocketHandler endpoint and calls fn for every event until
// ctx is done or the connection drops.
func Watch(ctx context.Context, wsURL string, fn func(Event)) error {
	conn, br, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Frames sent right after the handshake may already sit in br.
	var rw io.ReadWriter = conn
	if br != nil {
		defer ws.PutReader(br)
		rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay: read: %w", err)
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("relay: skipping malformed frame", "error", err)
			continue
		}
		fn(evt)
	}
}
