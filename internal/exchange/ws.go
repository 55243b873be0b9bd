package exchange

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"savantbot/internal/model"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectBase     = 1 * time.Second
	reconnectMax      = 60 * time.Second
)

// Feed streams mid prices for one asset over the Hyperliquid websocket.
// Samples are delivered on Out; the feed reconnects on its own with
// exponential backoff until the context is cancelled.
type Feed struct {
	wsURL string
	asset string

	backoffBase time.Duration
	backoffMax  time.Duration
	backoff     time.Duration

	Out chan model.Sample

	// OnReconnect is called before every reconnection attempt.
	OnReconnect func()
}

// NewFeed creates a websocket mid-price feed for asset.
func NewFeed(wsURL, asset string) *Feed {
	return &Feed{
		wsURL:       wsURL,
		asset:       asset,
		backoffBase: reconnectBase,
		backoffMax:  reconnectMax,
		Out:         make(chan model.Sample, 256),
	}
}

type wsSubscribe struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}

type wsEnvelope struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

// Run connects and pumps samples until ctx is cancelled. It never
// returns a connection error to the caller; transient failures are
// logged and retried.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.Out)

	f.backoff = f.backoffBase
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subscribed, err := f.connectAndPump(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			// A session that got as far as subscribing resets the
			// schedule; only consecutive failures escalate the wait.
			f.backoff = f.backoffBase
		}
		log.Printf("[exchange] ws disconnected: %v, reconnecting in %s", err, f.backoff)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff):
		}
		f.backoff *= 2
		if f.backoff > f.backoffMax {
			f.backoff = f.backoffMax
		}
	}
}

func (f *Feed) connectAndPump(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var sub wsSubscribe
	sub.Method = "subscribe"
	sub.Subscription.Type = "allMids"
	if err := conn.WriteJSON(sub); err != nil {
		return false, err
	}
	log.Printf("[exchange] ws connected, subscribed to allMids")

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.Channel != "allMids" {
			continue
		}
		s, ok := env.Data.Mids[f.asset]
		if !ok {
			continue
		}
		mid, err := strconv.ParseFloat(s, 64)
		if err != nil || mid <= 0 {
			continue
		}

		sample := model.Sample{TS: time.Now().UTC(), Price: mid}
		select {
		case f.Out <- sample:
		default:
			// Slow consumer: drop rather than stall the read loop.
		}
	}
}
