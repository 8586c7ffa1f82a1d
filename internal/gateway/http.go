package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultSuccessField = "code"
	defaultSuccessValue = "0"
	maxResponseBody     = 1 << 20 // 1 MB

	// Заголовки подписи.
	HeaderAppID     = "X-App-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// HTTPConfig: конфигурация HTTPGateway.
type HTTPConfig struct {
	// BaseURL задаёт адрес шлюза, операция добавляется к пути.
	BaseURL string

	// AppID и Secret используются для подписи запроса.
	AppID  string
	Secret string

	// Timeout задаёт таймаут одного вызова.
	Timeout time.Duration

	// SuccessField и SuccessValue задают дискриминант успеха.
	SuccessField string
	SuccessValue string

	// Client позволяет подменить HTTP клиент (тесты).
	Client *http.Client

	Logger *slog.Logger
}

// HTTPGateway вызывает операции контрагента по HTTP.
//
// Тело запроса:
//
//	{"operation": "...", "app_id": "...", "timestamp": 1700000000, "payload": {...}}
//
// Подпись: hex(HMAC-SHA256(secret, timestamp + "\n" + body)).
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewHTTPGateway создаёт HTTPGateway.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SuccessField == "" {
		cfg.SuccessField = defaultSuccessField
	}
	if cfg.SuccessValue == "" {
		cfg.SuccessValue = defaultSuccessValue
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPGateway{
		cfg:    cfg,
		client: client,
		logger: cfg.Logger.With("component", "gateway"),
		now:    time.Now,
	}
}

// envelope: тело запроса к шлюзу.
type envelope struct {
	Operation string         `json:"operation"`
	AppID     string         `json:"app_id"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Call выполняет операцию.
func (g *HTTPGateway) Call(ctx context.Context, operation string, payload map[string]any) (*Response, error) {
	ts := g.now().Unix()

	body, err := json.Marshal(envelope{
		Operation: operation,
		AppID:     g.cfg.AppID,
		Timestamp: ts,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrTransport, operation, err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}

	tsStr := strconv.FormatInt(ts, 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAppID, g.cfg.AppID)
	req.Header.Set(HeaderTimestamp, tsStr)
	req.Header.Set(HeaderSignature, Sign(g.cfg.Secret, tsStr, body))

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	g.logger.Debug("gateway call",
		"operation", operation,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	// 5xx и 429 считаются сбоем транспорта, прочие коды отказом.
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s: HTTP %d: %s",
			ErrTransport, operation, resp.StatusCode, truncate(string(respBody), 200))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &RejectedError{
			Operation: operation,
			Code:      "HTTP " + strconv.Itoa(resp.StatusCode),
			Message:   truncate(string(respBody), 200),
		}
	}

	return g.parse(operation, respBody)
}

// parse разбирает ответ и проверяет дискриминант.
func (g *HTTPGateway) parse(operation string, body []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %v", ErrTransport, operation, err)
	}

	resp := &Response{
		Code:    scalar(raw[g.cfg.SuccessField]),
		Message: firstScalar(raw, "message", "msg"),
		Data:    flatten(raw),
	}

	if resp.Code != g.cfg.SuccessValue {
		return resp, &RejectedError{Operation: operation, Code: resp.Code, Message: resp.Message}
	}
	return resp, nil
}

// Sign вычисляет подпись запроса.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// flatten поднимает поля вложенного "data" на верхний уровень.
// Поля верхнего уровня не перезаписываются.
func flatten(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	if nested, ok := raw["data"].(map[string]any); ok {
		for k, v := range nested {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func firstScalar(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

// truncate обрезает строку до maxLen байт, не разрезая символ UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
