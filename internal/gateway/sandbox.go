package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// sandboxIDs задаёт, какие идентификаторы возвращает операция.
var sandboxIDs = map[string][]string{
	"create_order":            {"order_id"},
	"submit_identity":         {"sign_order_id", "verify_code_no"},
	"verify_transport_permit": {"permit_id"},
	"open_wallet":             {"wallet_id"},
	"bind_vehicle":            {"vehicle_id"},
	"issue_card":              {"card_no"},
	"issue_obu":               {"obu_no"},
}

// Call описывает один вызов, принятый Sandbox.
type Call struct {
	Operation string
	Payload   map[string]any
}

// Sandbox отвечает успехом на любую операцию.
//
// Для известных операций генерирует идентификаторы. Отказы задаются
// через Fail; каждый заданный отказ срабатывает один раз.
// Потокобезопасен.
type Sandbox struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    []Call
}

// NewSandbox создаёт Sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{failures: make(map[string][]error)}
}

// Fail ставит в очередь отказ для операции.
// err должна быть ErrTransport-обёрткой или *RejectedError.
func (s *Sandbox) Fail(operation string, err error) *Sandbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = append(s.failures[operation], err)
	return s
}

// Reject ставит в очередь отказ контрагента с кодом и сообщением.
func (s *Sandbox) Reject(operation, code, message string) *Sandbox {
	return s.Fail(operation, &RejectedError{Operation: operation, Code: code, Message: message})
}

// Call выполняет операцию.
func (s *Sandbox) Call(ctx context.Context, operation string, payload map[string]any) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Operation: operation, Payload: payload})

	if queue := s.failures[operation]; len(queue) > 0 {
		err := queue[0]
		s.failures[operation] = queue[1:]
		if rej, ok := err.(*RejectedError); ok {
			return &Response{Code: rej.Code, Message: rej.Message}, err
		}
		return nil, err
	}

	data := map[string]any{}
	for _, field := range sandboxIDs[operation] {
		data[field] = sandboxID(field)
	}

	return &Response{Code: defaultSuccessValue, Message: "ok", Data: data}, nil
}

// Calls возвращает копию журнала вызовов.
func (s *Sandbox) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Operations возвращает имена вызванных операций по порядку.
func (s *Sandbox) Operations() []string {
	calls := s.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Operation
	}
	return ops
}

func sandboxID(field string) string {
	prefix := strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(field, "_id"), "_no"))
	return "SBX-" + prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
