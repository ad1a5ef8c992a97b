package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"ztime/pkg/ztime"
)

var _ cron.Schedule = (*ExprSchedule)(nil)

// ExprSchedule - расписание cron, заданное выражением ztime.
//
// Следующий запуск вычисляется заново относительно момента предыдущего:
//   - "12:00" - каждый день в 12:00 UTC
//   - "monday +09:00" - каждую неделю
//   - "+00:05" - каждые 5 минут
//   - "2030-01-01T00:00:00Z" - однократно
//
// Если выражение не дает момента строго после t, задача больше не запускается.
type ExprSchedule struct {
	expr   string
	jitter ztime.Duration
	parser *ztime.Parser
	rand   ztime.Rand
}

// NewExprSchedule проверяет выражение и создает расписание.
// jitter задает амплитуду случайного сдвига каждого запуска.
func NewExprSchedule(expr string, jitter ztime.Duration, opts ...ztime.Option) (*ExprSchedule, error) {
	parser := ztime.NewParser(opts...)
	if _, err := parser.Parse(expr); err != nil {
		return nil, err
	}
	return &ExprSchedule{
		expr:   expr,
		jitter: jitter,
		parser: parser,
		rand:   ztime.DefaultRand(),
	}, nil
}

// Expr возвращает исходное выражение.
func (e *ExprSchedule) Expr() string {
	return e.expr
}

// Next реализует cron.Schedule.
func (e *ExprSchedule) Next(t time.Time) time.Time {
	at, err := e.parser.ParseAt(e.expr, t)
	if err != nil {
		return time.Time{}
	}
	at = at.JitterWith(e.rand, e.jitter)
	if !at.Time().After(t) {
		return time.Time{}
	}
	return at.Time().In(t.Location())
}
