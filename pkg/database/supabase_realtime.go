package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// phoenixMessage Supabase realtime（Phoenix channels）消息格式
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type postgresChangesPayload struct {
	Data struct {
		Table     string                 `json:"table"`
		Type      string                 `json:"type"`
		Record    map[string]interface{} `json:"record"`
		OldRecord map[string]interface{} `json:"old_record"`
	} `json:"data"`
}

type joinReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// realtimeClient 每个订阅一个 websocket 连接，断线自动重连
type realtimeClient struct {
	wsURL  string
	apiKey string
	logger *slog.Logger
	dialer *websocket.Dialer

	heartbeat      time.Duration
	reconnectDelay time.Duration

	ref     atomic.Int64
	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

func newRealtimeClient(baseURL, apiKey string, logger *slog.Logger) *realtimeClient {
	// https://x.supabase.co -> wss://x.supabase.co, http -> ws
	wsBase := "ws" + strings.TrimPrefix(baseURL, "http")
	return &realtimeClient{
		wsURL:          wsBase + "/realtime/v1/websocket?apikey=" + url.QueryEscape(apiKey) + "&vsn=1.0.0",
		apiKey:         apiKey,
		logger:         logger,
		dialer:         websocket.DefaultDialer,
		heartbeat:      25 * time.Second,
		reconnectDelay: 2 * time.Second,
		cancels:        make(map[int]context.CancelFunc),
	}
}

func (c *realtimeClient) nextRef() string {
	return strconv.FormatInt(c.ref.Add(1), 10)
}

// subscribe 启动订阅，返回停止函数
func (c *realtimeClient) subscribe(ctx context.Context, table string, fn func(record map[string]interface{})) func() {
	subCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.cancels[id] = cancel
	c.mu.Unlock()

	go c.run(subCtx, table, fn)

	return func() {
		cancel()
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
	}
}

func (c *realtimeClient) run(ctx context.Context, table string, fn func(map[string]interface{})) {
	for {
		err := c.session(ctx, table, fn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("realtime subscription dropped, reconnecting", "table", table, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *realtimeClient) session(ctx context.Context, table string, fn func(map[string]interface{})) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer conn.Close()

	topic := "realtime:public:" + table
	join := map[string]interface{}{
		"topic": topic,
		"event": "phx_join",
		"payload": map[string]interface{}{
			"config": map[string]interface{}{
				"postgres_changes": []map[string]string{
					{"event": "*", "schema": "public", "table": table},
				},
			},
			"access_token": c.apiKey,
		},
		"ref": c.nextRef(),
	}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("join %s: %w", topic, err)
	}

	done := make(chan struct{})
	defer close(done)

	// 心跳协程是唯一的写方
	go func() {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				hb := map[string]interface{}{"topic": "phoenix", "event": "heartbeat", "payload": map[string]interface{}{}, "ref": c.nextRef()}
				if err := conn.WriteJSON(hb); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg phoenixMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Event {
		case "phx_reply":
			var reply joinReply
			if json.Unmarshal(msg.Payload, &reply) == nil && reply.Status == "error" {
				return fmt.Errorf("join %s rejected: %s", topic, string(reply.Response))
			}
		case "postgres_changes":
			var change postgresChangesPayload
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				c.logger.Debug("ignoring malformed realtime payload", "error", err)
				continue
			}
			record := change.Data.Record
			if len(record) == 0 {
				record = change.Data.OldRecord
			}
			if record == nil {
				record = map[string]interface{}{}
			}
			fn(record)
		}
	}
}

func (c *realtimeClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}
