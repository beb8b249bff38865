package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const guardCallTimeout = 10 * time.Second

// dialogGuard is a minimal CDP client on its own WebSocket connection whose
// only job is to auto-accept javascript dialogs on the portal tab. The portal
// throws confirm() boxes on some lookups; left unanswered they freeze the
// page and every later record times out. The guard also remembers that a
// dialog fired so the affected record can be classified.
type dialogGuard struct {
	conn      net.Conn
	writeMu   sync.Mutex
	seq       atomic.Int64
	sessionID string

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex

	seen  atomic.Bool
	total atomic.Int64
	done  chan struct{}
}

// attachDialogGuard dials the browser endpoint, attaches a flat session to
// the portal tab and enables the Page domain so dialog events arrive.
func attachDialogGuard(ctx context.Context, cdpURL, targetID string) (*dialogGuard, error) {
	wsURL, err := browserWSURL(ctx, cdpURL)
	if err != nil {
		return nil, fmt.Errorf("dialog guard: browser ws url: %w", err)
	}

	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("dialog guard: dial: %w", err)
	}

	g := &dialogGuard{
		conn:    conn,
		pending: make(map[int64]chan json.RawMessage),
		done:    make(chan struct{}),
	}
	go g.readLoop()

	attach := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: targetID, Flatten: true}
	raw, err := g.call(ctx, "", "Target.attachToTarget", attach)
	if err != nil {
		g.close()
		return nil, fmt.Errorf("dialog guard: attach: %w", err)
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &attached); err != nil || attached.SessionID == "" {
		g.close()
		return nil, fmt.Errorf("dialog guard: attach returned no session")
	}
	g.sessionID = attached.SessionID

	if _, err := g.call(ctx, g.sessionID, "Page.enable", nil); err != nil {
		g.close()
		return nil, fmt.Errorf("dialog guard: page enable: %w", err)
	}

	slog.Debug("dialog guard attached", "target_id", targetID)
	return g, nil
}

func (g *dialogGuard) resetDialogSeen() { g.seen.Store(false) }
func (g *dialogGuard) dialogSeen() bool { return g.seen.Load() }

func (g *dialogGuard) close() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
	if g.conn != nil {
		g.conn.Close()
	}
	if n := g.total.Load(); n > 0 {
		slog.Info("dialog guard closed", "dialogs_dismissed", n)
	}
}

func (g *dialogGuard) readLoop() {
	for {
		data, err := wsutil.ReadServerText(g.conn)
		if err != nil {
			slog.Debug("dialog guard read loop exit", "error", err)
			g.failPending()
			return
		}

		var msg struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}

		switch {
		case msg.ID > 0:
			g.pendingMu.Lock()
			ch, ok := g.pending[msg.ID]
			if ok {
				delete(g.pending, msg.ID)
			}
			g.pendingMu.Unlock()
			if ok {
				ch <- json.RawMessage(data)
			}
		case msg.Method == "Page.javascriptDialogOpening" && msg.SessionID == g.sessionID:
			g.onDialog(msg.Params)
		}
	}
}

func (g *dialogGuard) onDialog(params json.RawMessage) {
	var info struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	_ = json.Unmarshal(params, &info)

	g.seen.Store(true)
	g.total.Add(1)
	slog.Warn("javascript dialog auto-accepted", "type", info.Type, "message", info.Message)

	// Reply off the read loop; the command's response comes through it.
	go func() {
		accept := struct {
			Accept bool `json:"accept"`
		}{Accept: true}
		if _, err := g.call(context.Background(), g.sessionID, "Page.handleJavaScriptDialog", accept); err != nil {
			slog.Debug("dialog accept failed", "error", err)
		}
	}()
}

func (g *dialogGuard) failPending() {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
}

// call sends one CDP command, flat-session when sessionID is set, and waits
// for the matching response.
func (g *dialogGuard) call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, guardCallTimeout)
	defer cancel()

	id := g.seq.Add(1)
	req := struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	g.pendingMu.Lock()
	g.pending[id] = ch
	g.pendingMu.Unlock()

	g.writeMu.Lock()
	err = wsutil.WriteClientText(g.conn, data)
	g.writeMu.Unlock()
	if err != nil {
		g.dropPending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: connection closed", method)
		}
		var envelope struct {
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("unmarshal %s response: %w", method, err)
		}
		if envelope.Error != nil {
			return nil, fmt.Errorf("%s: %s", method, envelope.Error.Message)
		}
		return envelope.Result, nil
	case <-ctx.Done():
		g.dropPending(id)
		return nil, ctx.Err()
	case <-g.done:
		g.dropPending(id)
		return nil, fmt.Errorf("%s: guard closed", method)
	}
}

func (g *dialogGuard) dropPending(id int64) {
	g.pendingMu.Lock()
	delete(g.pending, id)
	g.pendingMu.Unlock()
}

// browserWSURL resolves the browser-level WebSocket endpoint from the CDP
// HTTP base via /json/version.
func browserWSURL(ctx context.Context, httpBase string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(httpBase, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
