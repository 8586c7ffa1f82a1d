package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
)

// Field: идентификатор, который порождает один из шагов саги.
type Field string

// Поля контекста сессии.
const (
	FieldOrderID      Field = "order_id"
	FieldSignOrderID  Field = "sign_order_id"
	FieldVerifyCodeNo Field = "verify_code_no"
	FieldVerifyCode   Field = "verify_code"
	FieldWalletID     Field = "wallet_id"
	FieldCardNo       Field = "card_no"
	FieldOBUNo        Field = "obu_no"
	FieldVehicleID    Field = "vehicle_id"
	FieldPermitID     Field = "permit_id"
)

// knownFields перечисляет поля, которые Merge забирает из ответа шлюза.
var knownFields = []Field{
	FieldOrderID,
	FieldSignOrderID,
	FieldVerifyCodeNo,
	FieldWalletID,
	FieldCardNo,
	FieldOBUNo,
	FieldVehicleID,
	FieldPermitID,
}

// SessionContext хранит идентификаторы, полученные по ходу саги.
//
// Каждое поле записывается один раз: шаг, который его породил, пишет,
// последующие шаги только читают. Повторная запись игнорируется.
// Время жизни: одна попытка оформления (start + resume).
type SessionContext struct {
	mu     sync.RWMutex
	values map[Field]string
}

// NewSessionContext создаёт пустой контекст.
func NewSessionContext() *SessionContext {
	return &SessionContext{values: make(map[Field]string)}
}

// RehydrateContext восстанавливает контекст по идентификаторам,
// которые вызывающая сторона получила в точке паузы.
func RehydrateContext(orderID, signOrderID, verifyCodeNo string) *SessionContext {
	c := NewSessionContext()
	c.Set(FieldOrderID, orderID)
	c.Set(FieldSignOrderID, signOrderID)
	c.Set(FieldVerifyCodeNo, verifyCodeNo)
	return c
}

// Get возвращает значение поля или пустую строку.
func (c *SessionContext) Get(f Field) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[f]
}

// Has проверяет, что поле уже записано.
func (c *SessionContext) Has(f Field) bool {
	return c.Get(f) != ""
}

// Set записывает поле, если оно ещё пустое.
// Возвращает true, если значение записано.
func (c *SessionContext) Set(f Field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[f]; exists {
		return false
	}
	c.values[f] = value
	return true
}

// Merge переносит известные идентификаторы из ответа шлюза.
// Уже записанные поля не трогает. Возвращает список новых полей.
func (c *SessionContext) Merge(data map[string]any) []Field {
	var added []Field
	for _, f := range knownFields {
		raw, ok := data[string(f)]
		if !ok {
			continue
		}
		if c.Set(f, stringify(raw)) {
			added = append(added, f)
		}
	}
	return added
}

// OrderID возвращает номер заказа.
func (c *SessionContext) OrderID() string { return c.Get(FieldOrderID) }

// SignOrderID возвращает номер заявки на подписание.
func (c *SessionContext) SignOrderID() string { return c.Get(FieldSignOrderID) }

// VerifyCodeNo возвращает номер отправленного кода подтверждения.
func (c *SessionContext) VerifyCodeNo() string { return c.Get(FieldVerifyCodeNo) }

// DeviceIDs возвращает серийные номера выданных устройств (карта, OBU).
func (c *SessionContext) DeviceIDs() []string {
	var ids []string
	for _, f := range []Field{FieldCardNo, FieldOBUNo} {
		if v := c.Get(f); v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}

// Snapshot возвращает копию всех записанных полей.
func (c *SessionContext) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[string(k)] = v
	}
	return out
}

// stringify приводит значение из JSON к строке идентификатора.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
