package recovery

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser принимает пятипольные выражения и дескрипторы (@every 1m).
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule проверяет расписание sweeper'а.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// NextRun возвращает время следующего запуска после from (UTC).
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return sched.Next(from).UTC(), nil
}
