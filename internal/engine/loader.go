package engine

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shaiso/Tollgate/internal/domain"
)

//go:embed plans/*.yaml
var builtinPlans embed.FS

// Catalog хранит провалидированные планы по вариантам.
type Catalog struct {
	plans map[domain.Variant]*Plan
}

// Load загружает план одного варианта.
//
// Если dir не пуст и в нём есть <variant>.yaml, используется он,
// иначе встроенный план. known передаётся в Validate.
func Load(variant domain.Variant, dir string, known func(string) bool) (*Plan, error) {
	data, err := readPlan(variant, dir)
	if err != nil {
		return nil, err
	}

	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", variant, err)
	}

	if plan.Variant == "" {
		plan.Variant = variant
	}
	if plan.Variant != variant {
		return nil, fmt.Errorf("plan %s: file declares %q: %w", variant, plan.Variant, ErrVariantMismatch)
	}

	if err := Validate(plan, known); err != nil {
		return nil, fmt.Errorf("plan %s: %w", variant, err)
	}

	return plan, nil
}

// LoadCatalog загружает планы всех вариантов.
func LoadCatalog(dir string, known func(string) bool) (*Catalog, error) {
	c := &Catalog{plans: make(map[domain.Variant]*Plan)}
	for _, v := range []domain.Variant{domain.VariantPassenger, domain.VariantFreight} {
		plan, err := Load(v, dir, known)
		if err != nil {
			return nil, err
		}
		c.plans[v] = plan
	}
	return c, nil
}

// NewCatalog собирает каталог из готовых планов (для тестов).
func NewCatalog(plans ...*Plan) *Catalog {
	c := &Catalog{plans: make(map[domain.Variant]*Plan, len(plans))}
	for _, p := range plans {
		c.plans[p.Variant] = p
	}
	return c
}

// LongestSegment возвращает сегмент с наибольшим числом вызовов шлюза
// среди всех планов и фаз. См. Plan.Calls.
func (c *Catalog) LongestSegment(retry bool) (calls, retries int) {
	for _, plan := range c.plans {
		for _, phase := range []domain.Phase{domain.PhaseStart, domain.PhaseResume} {
			n, r := plan.Calls(phase, retry)
			if n+r > calls+retries {
				calls, retries = n, r
			}
		}
	}
	return calls, retries
}

// Get возвращает план варианта.
func (c *Catalog) Get(variant domain.Variant) (*Plan, error) {
	plan, ok := c.plans[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, variant)
	}
	return plan, nil
}

func readPlan(variant domain.Variant, dir string) ([]byte, error) {
	name := string(variant) + ".yaml"

	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read plan %s: %w", name, err)
		}
	}

	data, err := builtinPlans.ReadFile("plans/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, variant)
	}
	return data, nil
}
