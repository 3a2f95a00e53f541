package utils

import (
	"fmt"
	"time"
)

var ptMonths = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

var ptWeekdays = [...]string{
	"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado",
}

const DateLayout = "2006-01-02"

// StartOfDay 返回 t 在 loc 时区当天零点
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DateKey 返回 t 在 loc 时区的日期 yyyy-mm-dd
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// FormatDatePT 例如 "3 de março de 2025"
func FormatDatePT(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%d de %s de %d", local.Day(), ptMonths[local.Month()-1], local.Year())
}

// FormatDateTimePT 例如 "segunda-feira, 3 de março de 2025 às 09:15"
func FormatDateTimePT(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%s, %s às %s", ptWeekdays[local.Weekday()], FormatDatePT(local, loc), local.Format("15:04"))
}
