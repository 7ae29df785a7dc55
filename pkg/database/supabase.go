package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// kvTable Supabase 中保存集合的表
const kvTable = "kv_store"

// SupabaseDatabase Supabase 实现：既是键值存储（kv_store 表），也是远程数据服务
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	realtime   *realtimeClient
}

// NewSupabaseDatabase 创建Supabase实例
func NewSupabaseDatabase(baseURL, key string, logger *slog.Logger) *SupabaseDatabase {
	if logger == nil {
		logger = slog.Default()
	}
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	db := &SupabaseDatabase{
		baseURL: baseURL,
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	db.realtime = newRealtimeClient(baseURL, key, logger)
	return db
}

// makeRequest 发送HTTP请求到Supabase（支持自定义头）
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, body interface{}, customHeaders map[string]string) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, db.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置默认请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	for key, value := range customHeaders {
		req.Header.Set(key, value)
	}

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ================= Key-value store =================

// Get 读取键
func (db *SupabaseDatabase) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/"+kvTable+"?key=eq."+url.QueryEscape(key)+"&select=value", nil, nil)
	if err != nil {
		return nil, false, err
	}
	var rows []struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("decode kv row: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0].Value, true, nil
}

// Set 以 upsert 方式写入键
func (db *SupabaseDatabase) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}
	payload := map[string]interface{}{
		"key":        key,
		"value":      json.RawMessage(value),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err := db.makeRequest(ctx, http.MethodPost, "/"+kvTable+"?on_conflict=key", payload, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	})
	return err
}

// Remove 删除键
func (db *SupabaseDatabase) Remove(ctx context.Context, key string) error {
	_, err := db.makeRequest(ctx, http.MethodDelete, "/"+kvTable+"?key=eq."+url.QueryEscape(key), nil, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

// Watch 通过 realtime 订阅 kv_store 表，只在变更行的 key 匹配时回调
func (db *SupabaseDatabase) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	return db.realtime.subscribe(ctx, kvTable, func(record map[string]interface{}) {
		if k, _ := record["key"].(string); k == key || k == "" {
			fn()
		}
	}), nil
}

// ================= Remote data service =================

// FetchAll 拉取表内所有记录
func (db *SupabaseDatabase) FetchAll(ctx context.Context, table string) ([]json.RawMessage, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/"+table+"?select=*", nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	return rows, nil
}

// Create 创建记录并返回服务端表示
func (db *SupabaseDatabase) Create(ctx context.Context, table string, record interface{}) (json.RawMessage, error) {
	data, err := db.makeRequest(ctx, http.MethodPost, "/"+table, record, nil)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode created %s row: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create %s returned no rows", table)
	}
	return rows[0], nil
}

// UpdateStatus 更新记录状态及附加字段
func (db *SupabaseDatabase) UpdateStatus(ctx context.Context, table, id, status string, extra map[string]interface{}) error {
	payload := map[string]interface{}{"status": status}
	for k, v := range extra {
		payload[k] = v
	}
	_, err := db.makeRequest(ctx, http.MethodPatch, "/"+table+"?id=eq."+url.QueryEscape(id), payload, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

// Subscribe 订阅表的增删改，回调不携带数据，调用方需要重新拉取
func (db *SupabaseDatabase) Subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	return db.realtime.subscribe(ctx, table, func(map[string]interface{}) { fn() }), nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.makeRequest(ctx, http.MethodGet, "/"+kvTable+"?select=key&limit=1", nil, nil)
	return err
}

// Close 关闭 realtime 连接
func (db *SupabaseDatabase) Close() error {
	db.realtime.close()
	return nil
}
