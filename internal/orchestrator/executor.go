package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/gateway"
	"github.com/shaiso/Tollgate/internal/progress"
	"github.com/shaiso/Tollgate/internal/steps"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

// RetryConfig: политика повторов шагов.
//
// Повторяются только критичные шаги с RetryCount > 0 и только
// при транспортных ошибках. Отказ контрагента не повторяется.
type RetryConfig struct {
	Enabled   bool
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Executor выполняет один шаг саги.
type Executor struct {
	gateway  gateway.Gateway
	table    steps.Table
	reporter *progress.Reporter
	retry    RetryConfig
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Execute выполняет шаг и возвращает его результат.
//
// На успех новые идентификаторы из ответа попадают в контекст
// (без перезаписи) и отправляется "<index>. <name> completed".
// На отказ отправляется "<index>. <name> failed: <reason>".
func (e *Executor) Execute(ctx context.Context, st *RunState, step domain.StepDef) *domain.StepResult {
	logger := telemetry.WithStep(e.logger, step.Index, step.Name)
	variant := string(st.Session.Variant)
	percent := st.Plan.Percent(step.Index)

	res := &domain.StepResult{Step: step}

	if err := st.Begin(step); err != nil {
		res.Err = err
		res.ErrorMessage = err.Error()
		return res
	}

	start := time.Now()
	e.run(ctx, st, step, res, logger)
	res.Duration = time.Since(start)

	if err := st.Finish(res); err != nil {
		logger.Error("step state transition failed", "error", err)
	}

	telemetry.StepDuration.WithLabelValues(variant, step.Name).Observe(res.Duration.Seconds())

	if res.Succeeded {
		telemetry.StepsTotal.WithLabelValues(variant, step.Name, telemetry.OutcomeSucceeded).Inc()
		logger.Info("step completed",
			"attempts", res.Attempts,
			"added", res.Added,
			"duration_ms", res.Duration.Milliseconds(),
		)
		e.reporter.Step(step, percent, progress.StatusSucceeded, step.Label()+" completed")
		return res
	}

	outcome := telemetry.OutcomeFailed
	if !step.AbortsOnFailure() {
		outcome = telemetry.OutcomeSwallowed
	}
	telemetry.StepsTotal.WithLabelValues(variant, step.Name, outcome).Inc()

	logger.Warn("step failed",
		"attempts", res.Attempts,
		"continue_on_error", step.ContinueOnError,
		"error", res.ErrorMessage,
	)
	e.reporter.Step(step, percent, progress.StatusFailed, failureMessage(step, res.ErrorMessage))
	return res
}

// run выполняет попытки шага. Шаг остаётся RUNNING между попытками.
func (e *Executor) run(ctx context.Context, st *RunState, step domain.StepDef, res *domain.StepResult, logger *slog.Logger) {
	builder, ok := e.table.For(step.Index)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", steps.ErrStepNotFound, step.Name)
		res.ErrorMessage = res.Err.Error()
		return
	}

	payload, err := builder(steps.NewInput(st.Session.Variant, st.Params, st.Context))
	if err != nil {
		res.Err = err
		res.ErrorMessage = err.Error()
		return
	}

	maxAttempts := 1
	if e.retry.Enabled && step.AbortsOnFailure() && step.RetryCount > 0 {
		maxAttempts += step.RetryCount
	}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt

		resp, err := e.gateway.Call(ctx, step.OperationName(), payload)
		if err == nil {
			res.Succeeded = true
			res.Response = resp.Data
			res.Err = nil
			res.ErrorMessage = ""
			res.Added = st.Context.Merge(resp.Data)
			if wallet := st.Context.Get(domain.FieldWalletID); wallet != "" {
				st.Params.Append(domain.ParamWalletID, wallet)
			}
			return
		}

		res.Err = err
		res.ErrorMessage = err.Error()

		if attempt >= maxAttempts || !gateway.IsRetryable(err) {
			return
		}

		delay := calculateBackoff(attempt, e.retry.BaseDelay, e.retry.MaxDelay)
		telemetry.StepsTotal.WithLabelValues(string(st.Session.Variant), step.Name, telemetry.OutcomeRetried).Inc()
		logger.Info("retrying step",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		e.reporter.Step(step, st.Plan.Percent(step.Index), progress.StatusRetrying,
			fmt.Sprintf("%s, retry %d/%d", failureMessage(step, res.ErrorMessage), attempt, maxAttempts-1))

		if err := e.sleep(ctx, delay); err != nil {
			res.Err = err
			res.ErrorMessage = err.Error()
			return
		}
	}
}

func failureMessage(step domain.StepDef, reason string) string {
	return fmt.Sprintf("%s failed: %s", step.Label(), reason)
}

// calculateBackoff возвращает экспоненциальную задержку перед попыткой
// attempt+1: base * 2^(attempt-1), но не больше maxDelay.
func calculateBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
