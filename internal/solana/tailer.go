package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"deriverse-analytics/internal/observability"
)

// LogNotification is one logsSubscribe message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// TailerConfig configures LogTailer reconnect behavior.
type TailerConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultTailerConfig returns default tailer configuration.
func DefaultTailerConfig() TailerConfig {
	return TailerConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// LogTailer maintains one logsSubscribe subscription for logs that
// mention a single account, reconnecting and resubscribing with
// exponential backoff when the connection drops. Notifications are
// delivered on the channel returned by Notifications; the channel is
// closed on Close.
type LogTailer struct {
	endpoint string
	mention  string
	config   TailerConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	subID atomic.Int64
	out   chan LogNotification
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewLogTailer connects, subscribes to logs mentioning the account and
// starts the read and ping loops.
func NewLogTailer(ctx context.Context, endpoint, mention string, config *TailerConfig, logger *log.Logger) (*LogTailer, error) {
	cfg := DefaultTailerConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	t := &LogTailer{
		endpoint: endpoint,
		mention:  mention,
		config:   cfg,
		logger:   logger,
		out:      make(chan LogNotification, 1024),
		done:     make(chan struct{}),
	}

	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	if err := t.subscribe(ctx); err != nil {
		t.conn.Close()
		return nil, err
	}

	t.wg.Add(2)
	go t.readLoop()
	go t.pingLoop()

	return t, nil
}

// Notifications returns the delivery channel.
func (t *LogTailer) Notifications() <-chan LogNotification {
	return t.out
}

// Close shuts the tailer down and closes the notification channel.
func (t *LogTailer) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.conn.Close()
	}
	t.connMu.Unlock()

	t.wg.Wait()
	close(t.out)
	return nil
}

func (t *LogTailer) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	return nil
}

// subscribe sends logsSubscribe and waits for the confirmation that
// carries the subscription id.
func (t *LogTailer) subscribe(ctx context.Context) error {
	reqID := t.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{t.mention}},
			map[string]string{"commitment": "confirmed"},
		},
	}

	t.connMu.Lock()
	conn := t.conn
	if conn == nil {
		t.connMu.Unlock()
		return fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	err := conn.WriteJSON(req)
	t.connMu.Unlock()
	if err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn.SetReadDeadline(deadline)
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read subscribe confirmation: %w", err)
		}

		var resp wsSubscribeResponse
		if json.Unmarshal(message, &resp) == nil && resp.ID == reqID && resp.Result > 0 {
			t.subID.Store(resp.Result)
			return nil
		}
		// Anything else (an early notification, an unrelated frame) is
		// handled by the read loop once it starts.
	}
}

func (t *LogTailer) readLoop() {
	defer t.wg.Done()

	reconnectDelay := t.config.ReconnectDelay

	for !t.closed.Load() {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			if !t.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay = bumpDelay(reconnectDelay, t.config.MaxReconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.logger.Printf("log tail read error, reconnecting: %v", err)
			t.connMu.Lock()
			t.conn.Close()
			t.conn = nil
			t.connMu.Unlock()
			continue
		}

		reconnectDelay = t.config.ReconnectDelay
		t.handleMessage(message)
	}
}

// reconnect dials and resubscribes after a delay. Returns false when
// the tailer was closed while waiting.
func (t *LogTailer) reconnect(delay time.Duration) bool {
	select {
	case <-t.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := t.connect(ctx); err != nil {
		t.logger.Printf("log tail reconnect failed: %v", err)
		return true
	}
	observability.DefaultMetrics.WSReconnects.Inc()
	if err := t.subscribe(ctx); err != nil {
		t.logger.Printf("log tail resubscribe failed: %v", err)
		t.connMu.Lock()
		if t.conn != nil {
			t.conn.Close()
			t.conn = nil
		}
		t.connMu.Unlock()
	}
	return true
}

func (t *LogTailer) handleMessage(message []byte) {
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
		return
	}
	if notif.Params.Subscription != t.subID.Load() {
		return
	}

	value := notif.Params.Result.Value
	out := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		out.Slot = notif.Params.Result.Context.Slot
	}

	select {
	case t.out <- out:
	case <-t.done:
	}
}

func (t *LogTailer) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.connMu.Lock()
			if t.conn != nil {
				t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
				// Dead connections surface in the read loop.
				t.conn.WriteMessage(websocket.PingMessage, nil)
			}
			t.connMu.Unlock()
		}
	}
}

func bumpDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
