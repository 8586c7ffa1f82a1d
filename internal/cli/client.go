package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StartResponse: идентификаторы точки паузы.
type StartResponse struct {
	SessionID    string `json:"session_id"`
	OrderID      string `json:"order_id"`
	SignOrderID  string `json:"sign_order_id"`
	VerifyCodeNo string `json:"verify_code_no"`
}

// StepFailure: проглоченный отказ шага.
type StepFailure struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ResumeResponse: итог оформления.
type ResumeResponse struct {
	SessionID string            `json:"session_id"`
	OrderID   string            `json:"order_id"`
	Status    string            `json:"status"`
	Context   map[string]string `json:"context"`
	DeviceIDs []string          `json:"device_ids,omitempty"`
	Swallowed []StepFailure     `json:"swallowed,omitempty"`
}

// PlanStep: шаг плана.
type PlanStep struct {
	Index           int    `json:"index"`
	Name            string `json:"name"`
	Title           string `json:"title,omitempty"`
	Operation       string `json:"operation"`
	Critical        bool   `json:"critical"`
	ContinueOnError bool   `json:"continue_on_error"`
	RetryCount      int    `json:"retry_count,omitempty"`
	PauseAfter      bool   `json:"pause_after,omitempty"`
	Percent         int    `json:"percent"`
}

// PlanResponse: таблица шагов варианта.
type PlanResponse struct {
	Variant    string     `json:"variant"`
	PauseIndex int        `json:"pause_index"`
	Steps      []PlanStep `json:"steps"`
}

// SessionStep: запись журнала шага.
type SessionStep struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
	Swallowed bool   `json:"swallowed,omitempty"`
}

// SessionResponse: сегмент сессии.
type SessionResponse struct {
	ID         string        `json:"id"`
	Variant    string        `json:"variant"`
	Phase      string        `json:"phase"`
	Status     string        `json:"status"`
	OrderID    string        `json:"order_id,omitempty"`
	IsSandbox  bool          `json:"is_sandbox"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  string        `json:"created_at"`
	FinishedAt string        `json:"finished_at,omitempty"`
	Steps      []SessionStep `json:"steps"`
}

// --- Request types ---

// StartRequest: запуск оформления.
type StartRequest struct {
	Variant   string            `json:"variant"`
	Params    map[string]string `json:"params"`
	IsSandbox bool              `json:"is_sandbox,omitempty"`
}

// ResumeRequest: продолжение оформления с кодом подтверждения.
type ResumeRequest struct {
	Variant      string            `json:"variant"`
	Code         string            `json:"code"`
	OrderID      string            `json:"order_id"`
	SignOrderID  string            `json:"sign_order_id"`
	VerifyCodeNo string            `json:"verify_code_no"`
	Params       map[string]string `json:"params"`
	IsSandbox    bool              `json:"is_sandbox,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		StepIndex int    `json:"step_index"`
		StepName  string `json:"step_name"`
	} `json:"error"`
}

// APIError: ошибка, которую вернул API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	StepIndex int
	StepName  string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client: HTTP-клиент для Tollgate API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// Таймаут покрывает весь сегмент саги, поэтому он больше обычного.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Start выполняет шаги до точки паузы.
func (c *Client) Start(req StartRequest) (*StartResponse, error) {
	var res StartResponse
	err := c.post("/api/v1/applications", req, &res)
	return &res, err
}

// Resume выполняет шаги после точки паузы.
func (c *Client) Resume(req ResumeRequest) (*ResumeResponse, error) {
	var res ResumeResponse
	err := c.post("/api/v1/applications/resume", req, &res)
	return &res, err
}

// GetPlan возвращает таблицу шагов варианта.
func (c *Client) GetPlan(variant string) (*PlanResponse, error) {
	var plan PlanResponse
	err := c.get("/api/v1/plans/"+variant, &plan)
	return &plan, err
}

// GetSession возвращает сегмент сессии с журналом шагов.
func (c *Client) GetSession(id string) (*SessionResponse, error) {
	var s SessionResponse
	err := c.get("/api/v1/sessions/"+id, &s)
	return &s, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return &APIError{
		Status:    resp.StatusCode,
		Code:      er.Error.Code,
		Message:   er.Error.Message,
		StepIndex: er.Error.StepIndex,
		StepName:  er.Error.StepName,
	}
}
