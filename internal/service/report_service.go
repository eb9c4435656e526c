package service

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"calorie-log/internal/model"
)

// ReportService builds human-readable day summaries for notifications.
type ReportService struct {
	logSvc *LogService
}

func NewReportService(logSvc *LogService) *ReportService {
	return &ReportService{logSvc: logSvc}
}

// DailySummary renders the user's log for now's calendar day: one line per
// entry plus the aggregated total and, when set, the remaining target.
func (s *ReportService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	rows, err := s.logSvc.EntriesForDay(ctx, &user, now)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("🍽 <b>Дневник калорий</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	if len(rows) == 0 {
		builder.WriteString("— записей за сегодня нет\n")
	} else {
		for _, row := range rows {
			builder.WriteString(FormatEntryLine(row, now.Location()))
			builder.WriteByte('\n')
		}
	}

	total := DayTotal(rows)
	builder.WriteString(fmt.Sprintf("\nΣ <b>Всего за день: %s кал</b>\n", FormatCalories(total)))

	if user.DailyCalorieTarget != nil {
		remaining := *user.DailyCalorieTarget - total
		if remaining >= 0 {
			builder.WriteString(fmt.Sprintf("🎯 Цель %s кал · осталось %s кал\n",
				FormatCalories(*user.DailyCalorieTarget), FormatCalories(remaining)))
		} else {
			builder.WriteString(fmt.Sprintf("🎯 Цель %s кал · превышена на %s кал\n",
				FormatCalories(*user.DailyCalorieTarget), FormatCalories(-remaining)))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatEntryLine renders one log entry for chat display. Unresolved entries
// are marked instead of being hidden.
func FormatEntryLine(row model.LogEntryRow, loc *time.Location) string {
	label := html.EscapeString(EntryLabel(row))
	when := row.Timestamp.In(loc).Format("15:04")
	if !EntryResolved(row) {
		return fmt.Sprintf("❔ %s — без калорий · %s", label, when)
	}
	return fmt.Sprintf("• %s — %s кал · %s", label, FormatCalories(EntryCalories(row)), when)
}

// FormatCalories prints a calorie figure without trailing zeros, keeping
// fractional values (e.g. 247.5) intact.
func FormatCalories(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
