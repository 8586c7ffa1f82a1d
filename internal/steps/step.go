package steps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Ошибки шагов.
var (
	// ErrStepNotFound: для имени шага нет сборщика.
	ErrStepNotFound = errors.New("payload builder not found")

	// ErrMissingContext: предыдущий шаг не записал нужный идентификатор.
	ErrMissingContext = errors.New("required context field is missing")

	// ErrMissingParam: в параметрах заявки нет нужного поля.
	ErrMissingParam = errors.New("required parameter is missing")
)

// Builder собирает payload удалённого вызова для одного шага.
//
// Builder не делает сетевых вызовов и не меняет Input.
type Builder func(in *Input) (map[string]any, error)

// Input содержит данные, из которых собирается payload.
type Input struct {
	// Variant задаёт тип заявки.
	Variant domain.Variant

	// Params содержит параметры заявителя.
	Params domain.Parameters

	// Context содержит идентификаторы предыдущих шагов.
	Context *domain.SessionContext
}

// NewInput создаёт Input.
func NewInput(variant domain.Variant, params domain.Parameters, sc *domain.SessionContext) *Input {
	if params == nil {
		params = domain.Parameters{}
	}
	if sc == nil {
		sc = domain.NewSessionContext()
	}
	return &Input{Variant: variant, Params: params, Context: sc}
}

// require возвращает значения полей контекста или ErrMissingContext.
func (in *Input) require(fields ...domain.Field) (map[domain.Field]string, error) {
	out := make(map[domain.Field]string, len(fields))
	var missing []string
	for _, f := range fields {
		v := in.Context.Get(f)
		if v == "" {
			missing = append(missing, string(f))
			continue
		}
		out[f] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingContext, strings.Join(missing, ", "))
	}
	return out, nil
}

// param возвращает параметр или ErrMissingParam.
func (in *Input) param(key string) (string, error) {
	v := in.Params.Get(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return v, nil
}

// vehicle возвращает общий блок данных ТС.
func (in *Input) vehicle() map[string]any {
	return map[string]any{
		"plate_no":     in.Params.Identity().PlateNo,
		"plate_color":  in.Params.Get(domain.ParamPlateColor),
		"vehicle_type": in.Params.Get(domain.ParamVehicleType),
		"vin":          in.Params.Get(domain.ParamVIN),
		"engine_no":    in.Params.Get(domain.ParamEngineNo),
	}
}
