// Package geyser implements the upstream transaction stream client.
//
// The upstream is a Geyser-style node streaming transaction notifications
// over a WebSocket JSON-RPC protocol: one transactionSubscribe request per
// connection, then a sequence of transactionNotification frames. The client
// opens exactly one subscription per connection; reconnection is the
// caller's responsibility.
package geyser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
)

// DialerConfig configures upstream connection behavior.
type DialerConfig struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription confirmation.
	SubscribeTimeout time.Duration
	// ReadTimeout is the maximum silence tolerated before the connection is
	// considered dead.
	ReadTimeout time.Duration
	// WriteTimeout bounds outbound writes.
	WriteTimeout time.Duration
}

// DefaultDialerConfig returns default connection configuration.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Dialer opens WebSocket connections to the upstream endpoint.
type Dialer struct {
	endpoint string
	config   DialerConfig
}

// NewDialer creates a dialer for the given ws:// or wss:// endpoint.
func NewDialer(endpoint string, config *DialerConfig) *Dialer {
	cfg := DefaultDialerConfig()
	if config != nil {
		cfg = *config
	}
	return &Dialer{endpoint: endpoint, config: cfg}
}

// Dial opens a new connection. The connection is closed automatically when
// ctx is cancelled so blocked reads observe shutdown promptly.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.endpoint, err)
	}

	c := &Conn{
		ws:     ws,
		config: d.config,
		done:   make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	return c, nil
}

// Conn is one live upstream connection carrying at most one subscription.
type Conn struct {
	ws        *websocket.Conn
	config    DialerConfig
	requestID atomic.Uint64
	subID     int64
	closed    atomic.Bool
	done      chan struct{}
}

// Subscribe sends the transaction subscription request and waits for its
// confirmation. It must be called once, before Next, from the same
// goroutine that will read the stream.
func (c *Conn) Subscribe(ctx context.Context, filter SubscribeFilter) error {
	reqID := c.requestID.Add(1)

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			map[string]interface{}{
				"vote":           filter.Vote,
				"failed":         filter.Failed,
				"accountInclude": filter.AccountInclude,
			},
			map[string]string{"commitment": filter.Commitment},
		},
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		c.ws.SetReadDeadline(deadline)
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read subscribe response: %w", err)
		}

		var errResp wsErrorResponse
		if err := json.Unmarshal(msg, &errResp); err == nil && errResp.ID == reqID && errResp.Error != nil {
			return fmt.Errorf("subscribe rejected: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		}

		var resp wsSubscribeResponse
		if err := json.Unmarshal(msg, &resp); err == nil && resp.ID == reqID && resp.Result != 0 {
			c.subID = resp.Result
			return nil
		}

		// Unrelated frame before the confirmation; keep waiting.
	}
}

// Next blocks until the next transaction notification arrives and returns
// it decoded. A clean upstream close is reported as io.EOF; every other
// failure is a stream error.
func (c *Conn) Next(ctx context.Context) (*Update, error) {
	for {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read update: %w", err)
		}

		var notif wsNotification
		if err := json.Unmarshal(msg, &notif); err != nil {
			continue
		}
		if notif.Method != "transactionNotification" || notif.Params == nil {
			continue
		}
		if notif.Params.Subscription != c.subID {
			continue
		}

		return decodeUpdate(&notif.Params.Result), nil
	}
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}

// decodeUpdate converts a wire notification into an Update. Fields that
// fail to decode are left empty; shape problems are the classifier's
// concern, not a stream failure.
func decodeUpdate(result *wsTransactionResult) *Update {
	info := &TransactionInfo{
		Signature: decodeBase58(result.Signature),
	}

	if result.Transaction != nil {
		tx := &Transaction{}
		for _, sig := range result.Transaction.Signatures {
			tx.Signatures = append(tx.Signatures, decodeBase58(sig))
		}
		if result.Transaction.Message != nil {
			msg := &Message{}
			for _, key := range result.Transaction.Message.AccountKeys {
				msg.AccountKeys = append(msg.AccountKeys, decodeBase58(key))
			}
			tx.Message = msg
		}
		info.Transaction = tx
	}

	if result.Meta != nil {
		info.Meta = &TransactionMeta{
			Failed:            result.Meta.Err != nil,
			Fee:               result.Meta.Fee,
			LogMessages:       result.Meta.LogMessages,
			PreTokenBalances:  decodeTokenBalances(result.Meta.PreTokenBalances),
			PostTokenBalances: decodeTokenBalances(result.Meta.PostTokenBalances),
		}
	}

	return &Update{
		Transaction: &TransactionUpdate{
			Slot:        result.Slot,
			Transaction: info,
		},
	}
}

func decodeTokenBalances(in []wsTokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(in))
	for _, tb := range in {
		out = append(out, TokenBalance{
			AccountIndex: tb.AccountIndex,
			Mint:         tb.Mint,
			Owner:        tb.Owner,
		})
	}
	return out
}

func decodeBase58(s string) []byte {
	if s == "" {
		return nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil
	}
	return raw
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

type wsErrorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64               `json:"subscription"`
	Result       wsTransactionResult `json:"result"`
}

type wsTransactionResult struct {
	Slot        uint64             `json:"slot"`
	Signature   string             `json:"signature"`
	Transaction *wsTransaction     `json:"transaction"`
	Meta        *wsTransactionMeta `json:"meta"`
}

type wsTransaction struct {
	Signatures []string   `json:"signatures"`
	Message    *wsMessage `json:"message"`
}

type wsMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

type wsTransactionMeta struct {
	Err               interface{}      `json:"err"`
	Fee               uint64           `json:"fee"`
	LogMessages       []string         `json:"logMessages"`
	PreTokenBalances  []wsTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []wsTokenBalance `json:"postTokenBalances"`
}

type wsTokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
}
