package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// ErrNoTrigger: у schedule нет ни cron_expr, ни interval_sec.
var ErrNoTrigger = errors.New("schedule has neither cron_expr nor interval_sec")

// cronParser: стандартный пятипольный формат.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет следующее время запуска после from.
//
// Cron считается в часовом поясе schedule; результат всегда в UTC.
// Пропущенные запуски не догоняются: берётся ближайший после from.
func NextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case sched.IsCron():
		spec, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return spec.Next(from.In(loc)).UTC(), nil
	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	default:
		return time.Time{}, ErrNoTrigger
	}
}

// Validate проверяет расписание до сохранения.
func Validate(sched *domain.Schedule) error {
	if sched.CronExpr != "" && sched.IntervalSec != 0 {
		return errors.New("cron_expr and interval_sec are mutually exclusive")
	}
	if sched.IntervalSec < 0 {
		return errors.New("interval_sec must be positive")
	}
	if _, err := loadLocation(sched.Timezone); err != nil {
		return err
	}
	if sched.IsCron() {
		if _, err := cronParser.Parse(sched.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
		}
		return nil
	}
	if !sched.IsInterval() {
		return ErrNoTrigger
	}
	return nil
}

// InitialNextDue заполняет NextDueAt нового schedule.
func InitialNextDue(sched *domain.Schedule, now time.Time) error {
	next, err := NextDue(sched, now)
	if err != nil {
		return err
	}
	sched.NextDueAt = &next
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
