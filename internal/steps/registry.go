package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Tollgate/internal/engine"
)

// Registry хранит сборщики payload по имени шага.
// Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// DefaultRegistry создаёт реестр со сборщиками обоих вариантов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(CheckVehicle, buildCheckVehicle)
	r.Register(QueryBlacklist, buildQueryBlacklist)
	r.Register(CreateOrder, buildCreateOrder)
	r.Register(UploadVehicleImages, buildUploadVehicleImages)
	r.Register(SubmitIdentity, buildSubmitIdentity)
	r.Register(ConfirmSign, buildConfirmSign)
	r.Register(VerifyTransportPermit, buildVerifyTransportPermit)
	r.Register(OpenWallet, buildOpenWallet)
	r.Register(BindVehicle, buildBindVehicle)
	r.Register(SubmitAxleInfo, buildSubmitAxleInfo)
	r.Register(SyncVehicleAttributes, buildSyncVehicleAttributes)
	r.Register(IssueCard, buildIssueCard)
	r.Register(IssueOBU, buildIssueOBU)
	r.Register(ActivateDevices, buildActivateDevices)
	r.Register(NotifyCompletion, buildNotifyCompletion)

	return r
}

// Register регистрирует сборщик.
// Если сборщик с таким именем уже есть, он будет перезаписан.
func (r *Registry) Register(name string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// Get возвращает сборщик по имени шага.
// Возвращает ErrStepNotFound, если сборщика нет.
func (r *Registry) Get(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.builders[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	return b, nil
}

// Has проверяет, зарегистрирован ли сборщик.
// Передаётся в engine.Validate.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.builders[name]
	return exists
}

// Names возвращает имена зарегистрированных шагов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество сборщиков.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.builders)
}

// Table связывает индексы плана со сборщиками.
// Table[i] обслуживает шаг с индексом i+1.
type Table []Builder

// Bind строит таблицу сборщиков для плана.
func (r *Registry) Bind(plan *engine.Plan) (Table, error) {
	table := make(Table, plan.Len())
	for i, step := range plan.Steps {
		b, err := r.Get(step.Name)
		if err != nil {
			return nil, fmt.Errorf("bind %s step %d: %w", plan.Variant, step.Index, err)
		}
		table[i] = b
	}
	return table, nil
}

// For возвращает сборщик шага с индексом index (1..N).
func (t Table) For(index int) (Builder, bool) {
	if index < 1 || index > len(t) {
		return nil, false
	}
	return t[index-1], true
}
