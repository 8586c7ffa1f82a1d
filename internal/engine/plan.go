package engine

import (
	"github.com/shaiso/Tollgate/internal/domain"
)

// Plan: упорядоченный набор шагов для одного варианта заявки.
//
// После Validate гарантируется:
//   - индексы идут 1..N без пропусков, Steps[i].Index == i+1
//   - ровно один шаг с PauseAfter
type Plan struct {
	// Variant задаёт тип заявки.
	Variant domain.Variant `json:"variant" yaml:"variant"`

	// Steps перечисляет шаги в порядке выполнения.
	Steps []domain.StepDef `json:"steps" yaml:"steps"`
}

// Len возвращает число шагов N.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// Step возвращает шаг по индексу (1..N).
func (p *Plan) Step(index int) (domain.StepDef, bool) {
	if index < 1 || index > len(p.Steps) {
		return domain.StepDef{}, false
	}
	return p.Steps[index-1], true
}

// PauseIndex возвращает индекс шага, после которого сага ждёт код.
// Возвращает 0, если точки паузы нет.
func (p *Plan) PauseIndex() int {
	for _, s := range p.Steps {
		if s.PauseAfter {
			return s.Index
		}
	}
	return 0
}

// Segment возвращает шаги, которые выполняются в указанной фазе.
//
// PhaseStart: шаги 1..pause включительно.
// PhaseResume: шаги pause+1..N.
func (p *Plan) Segment(phase domain.Phase) []domain.StepDef {
	pause := p.PauseIndex()
	if pause == 0 {
		if phase == domain.PhaseStart {
			return p.Steps
		}
		return nil
	}

	switch phase {
	case domain.PhaseStart:
		return p.Steps[:pause]
	case domain.PhaseResume:
		return p.Steps[pause:]
	default:
		return nil
	}
}

// Percent возвращает процент прогресса для шага: index/N*100.
func (p *Plan) Percent(index int) int {
	if len(p.Steps) == 0 {
		return 0
	}
	pct := index * 100 / len(p.Steps)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// Calls возвращает число вызовов шлюза в сегменте phase и число
// возможных повторов. Повторы считаются только при retry и только
// для прерывающих шагов с retry_count > 0.
func (p *Plan) Calls(phase domain.Phase, retry bool) (calls, retries int) {
	for _, s := range p.Segment(phase) {
		calls++
		if retry && s.AbortsOnFailure() && s.RetryCount > 0 {
			retries += s.RetryCount
		}
	}
	return calls, retries
}

// Names возвращает имена шагов по порядку.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}
