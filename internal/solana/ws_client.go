package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-ico/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Logger receives connection diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// Subscription kinds.
const (
	subKindLogs      = "logs"
	subKindSignature = "signature"
)

// subscription holds one active subscription and its delivery channel.
type subscription struct {
	kind   string
	method string
	params []interface{}

	logs chan LogNotification
	sigs chan SignatureNotification

	// id and ended are guarded by subsMu. A negative id marks a
	// subscription parked after a failed resubscribe.
	id    int64
	ended bool
	// finished is closed once the subscription ends.
	finished chan struct{}
}

// closeChannel closes whichever channel the subscription owns.
func (s *subscription) closeChannel() {
	switch s.kind {
	case subKindLogs:
		close(s.logs)
	case subKindSignature:
		close(s.sigs)
	}
}

func (s *subscription) unsubscribeMethod() string {
	if s.kind == subKindSignature {
		return "signatureUnsubscribe"
	}
	return "logsUnsubscribe"
}

// pendingSub is a subscribe request awaiting its confirmation.
type pendingSub struct {
	confirm chan int64
	sub     *subscription
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to subscription
	subs   map[int64]*subscription
	subsMu sync.RWMutex
	parked int64

	// pendingSubs maps request ID to the subscription awaiting its ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[int64]*subscription),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	var first interface{} = "all"
	if len(filter.Mentions) > 0 {
		first = map[string]interface{}{"mentions": filter.Mentions}
	}

	sub := &subscription{
		kind:   subKindLogs,
		method: "logsSubscribe",
		params: []interface{}{
			first,
			map[string]string{"commitment": CommitmentConfirmed},
		},
		// Large buffer absorbs bursts; sends block rather than drop.
		logs: make(chan LogNotification, 10000),
	}

	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.logs, nil
}

// SubscribeSignature subscribes to the confirmation of one signature. The
// subscription is cancelled on the node and its channel closed when ctx is
// done before the notification arrives.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error) {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	sub := &subscription{
		kind:   subKindSignature,
		method: "signatureSubscribe",
		params: []interface{}{
			signature,
			map[string]string{"commitment": commitment},
		},
		sigs: make(chan SignatureNotification, 1),
	}

	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(sub)
		case <-sub.finished:
		case <-c.done:
		}
	}()
	return sub.sigs, nil
}

// subscribe sends the subscription request. The read loop registers the
// subscription as the confirmation arrives, so notifications that follow the
// confirmation immediately are delivered.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *subscription) error {
	sub.finished = make(chan struct{})
	if _, err := c.sendSubscribe(ctx, sub); err != nil {
		c.unsubscribe(sub)
		return err
	}
	return nil
}

// sendSubscribe writes a subscribe request and waits for its subscription ID.
func (c *WSClientImpl) sendSubscribe(ctx context.Context, sub *subscription) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	method := sub.method
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  sub.params,
	}

	// Create channel to receive subscription ID
	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{confirm: confirmCh, sub: sub}
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		dropPending()
		return 0, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		dropPending()
		return 0, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return 0, fmt.Errorf("%s timeout after %v", method, c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// unsubscribe ends sub: it leaves the registry, its signature channel is
// closed and the node is told to drop it. Ending an ended subscription is a
// no-op.
func (c *WSClientImpl) unsubscribe(sub *subscription) {
	c.subsMu.Lock()
	registered := c.subs[sub.id] == sub
	if !c.endLocked(sub) {
		c.subsMu.Unlock()
		return
	}
	id := sub.id
	c.subsMu.Unlock()

	// Log channels stay open while the read loop may still deliver to them;
	// Close releases them.
	if sub.kind == subKindSignature {
		close(sub.sigs)
	}
	if registered && id >= 0 {
		c.sendUnsubscribe(sub.unsubscribeMethod(), id)
	}
}

// endLocked marks sub ended and drops it from the registry. It reports
// whether this call ended it. Caller holds subsMu.
func (c *WSClientImpl) endLocked(sub *subscription) bool {
	if sub.ended {
		return false
	}
	sub.ended = true
	if c.subs[sub.id] == sub {
		delete(c.subs, sub.id)
	}
	close(sub.finished)
	return true
}

// sendUnsubscribe is best effort. A failed write leaves the node to drop the
// subscription with the connection.
func (c *WSClientImpl) sendUnsubscribe(method string, subID int64) {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  []interface{}{subID},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		c.logger.Debug("unsubscribe failed",
			zap.String("method", method), zap.Int64("subscription", subID), zap.Error(err))
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	// Close all subscription channels
	c.subsMu.Lock()
	for _, sub := range c.subs {
		if c.endLocked(sub) {
			sub.closeChannel()
		}
	}
	c.subsMu.Unlock()

	// Close pending subscription channels
	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.logger.Warn("websocket read failed, reconnecting",
				zap.Error(err), zap.Duration("delay", reconnectDelay))

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		c.logger.Warn("websocket reconnect failed", zap.Error(err))
		return
	}
	observability.RecordWSReconnect()

	c.resubscribeAll()
}

// resubscribeAll re-issues every active subscription after reconnect. IDs
// from the old connection are void; each subscription is registered again
// under the ID its new confirmation carries.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.Lock()
	current := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		current = append(current, sub)
	}
	c.subs = make(map[int64]*subscription, len(current))
	c.subsMu.Unlock()

	for _, sub := range current {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.sendSubscribe(ctx, sub)
		cancel()
		if err == nil {
			continue
		}

		c.logger.Warn("resubscribe failed", zap.String("method", sub.method), zap.Error(err))

		// Park under a key no node assigns; next reconnect retries.
		c.subsMu.Lock()
		if !sub.ended && c.subs[sub.id] != sub {
			c.parked--
			sub.id = c.parked
			c.subs[sub.id] = sub
		}
		c.subsMu.Unlock()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Debug("unparseable websocket message", zap.Error(err))
		return
	}

	if env.Method != "" {
		if env.Params != nil {
			c.handleNotification(env.Method, env.Params)
		}
		return
	}

	if env.ID == nil {
		return
	}

	if env.Error != nil {
		// Subscription will time out on the caller side.
		c.logger.Warn("websocket error response",
			zap.Uint64("id", *env.ID), zap.Int("code", env.Error.Code), zap.String("message", env.Error.Message))
		return
	}

	var subID int64
	if err := json.Unmarshal(env.Result, &subID); err != nil {
		// Unsubscribe acknowledgements carry a bool result.
		return
	}
	c.handleSubscribeResponse(*env.ID, subID)
}

// handleSubscribeResponse registers the confirmed subscription before the
// next message is read, then hands the ID to the waiting caller.
func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()
	if !ok {
		return
	}

	c.subsMu.Lock()
	live := !p.sub.ended
	if live {
		p.sub.id = subID
		c.subs[subID] = p.sub
	}
	c.subsMu.Unlock()

	if !live {
		// Ended while the request was in flight.
		c.sendUnsubscribe(p.sub.unsubscribeMethod(), subID)
	}

	select {
	case p.confirm <- subID:
	default:
	}
}

// handleNotification dispatches a notification to its subscriber.
func (c *WSClientImpl) handleNotification(method string, params *wsNotificationParams) {
	var slot int64
	if params.Result.Context != nil {
		slot = params.Result.Context.Slot
	}

	observability.RecordWSNotification(method)

	switch method {
	case "logsNotification":
		var value wsLogsValue
		if err := json.Unmarshal(params.Result.Value, &value); err != nil {
			return
		}

		c.subsMu.RLock()
		sub, ok := c.subs[params.Subscription]
		c.subsMu.RUnlock()
		if !ok || sub.kind != subKindLogs {
			return
		}

		// Block until we can send - never drop events
		select {
		case sub.logs <- LogNotification{
			Signature: value.Signature,
			Slot:      slot,
			Logs:      value.Logs,
			Err:       value.Err,
		}:
		case <-c.done:
		}

	case "signatureNotification":
		var value wsSignatureValue
		if err := json.Unmarshal(params.Result.Value, &value); err != nil {
			return
		}

		// Signature subscriptions are cancelled by the node after one notification.
		c.subsMu.Lock()
		sub, ok := c.subs[params.Subscription]
		ok = ok && sub.kind == subKindSignature && c.endLocked(sub)
		c.subsMu.Unlock()
		if !ok {
			return
		}

		sub.sigs <- SignatureNotification{Slot: slot, Err: value.Err}
		close(sub.sigs)
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error and triggers reconnect.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers responses and notifications.
type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id,omitempty"`
	Method  string                `json:"method,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
