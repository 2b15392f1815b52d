// Package payment реализует чистую логику платёжных состояний и журнала.
// Функции пакета не читают системные часы и не выполняют побочных эффектов:
// время приходит в событии, сохранение результата — обязанность вызывающего.
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/agency-backoffice/internal/model"
)

// ErrDuplicateEnrollment возвращается при повторной оплате вступительного взноса.
var (
	ErrDuplicateEnrollment = errors.New("enrollment fee already paid")
	// ErrDuplicateMonthlyDues возвращается при повторной оплате взноса за тот же календарный месяц.
	ErrDuplicateMonthlyDues = errors.New("monthly dues already paid for this month")
	// ErrInvalidTransaction возвращается при попытке создать некорректную запись журнала.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrUnknownEventKind возвращается для нераспознанного типа платёжного события.
	ErrUnknownEventKind = errors.New("unknown payment event kind")
)

// duesPeriod — длительность оплаченного периода членского взноса.
const duesPeriod = 30 * 24 * time.Hour

// Result описывает исход применения платёжного события.
// При отклонении Accepted равен false, Reason содержит причину,
// а Status совпадает с исходным состоянием плательщика.
type Result struct {
	Accepted bool
	Status   model.PaymentStatus
	Reason   error
}

// ParseEventKind разбирает тип события, принимая и канонические имена,
// и значения из формы администратора (inscription, cotisation и т.д.).
func ParseEventKind(s string) (model.EventKind, error) {
	switch s {
	case "enrollment", "inscription":
		return model.EventEnrollment, nil
	case "monthly_dues", "cotisation":
		return model.EventMonthlyDues, nil
	case "enrollment_and_dues", "cotisation_inscription":
		return model.EventEnrollmentAndDues, nil
	case "advance", "avance":
		return model.EventAdvance, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

func includesEnrollment(kind model.EventKind) bool {
	return kind == model.EventEnrollment || kind == model.EventEnrollmentAndDues
}

func includesDues(kind model.EventKind) bool {
	return kind == model.EventMonthlyDues || kind == model.EventEnrollmentAndDues
}

func sameCalendarMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IsUpToDate вычисляет производный флаг актуальности оплат по правилу направления:
// для начинающих требуются и вступительный, и членский взносы,
// для профессиональных моделей — только членский.
func IsUpToDate(track model.Track, st model.PaymentStatus) bool {
	if track == model.TrackBeginner {
		return st.InscriptionPaid && st.CotisationPaid
	}
	return st.CotisationPaid
}

// ApplyPayment применяет платёжное событие к записи плательщика и возвращает
// новое платёжное состояние. Функция чистая: исходная запись не изменяется.
//
// Порядок проверок фиксирован: повторный вступительный взнос отклоняется первым,
// затем повторный членский взнос за тот же календарный месяц.
func ApplyPayment(p model.Payer, e model.PaymentEvent) Result {
	st := p.Status

	if includesEnrollment(e.Kind) && st.InscriptionPaid {
		return Result{
			Status: st,
			Reason: ErrDuplicateEnrollment,
		}
	}

	if includesDues(e.Kind) && st.LastCotisationDate != nil && sameCalendarMonth(*st.LastCotisationDate, e.OccurredAt) {
		return Result{
			Status: st,
			Reason: fmt.Errorf("%w: paid on %s", ErrDuplicateMonthlyDues, st.LastCotisationDate.Format("2006-01-02")),
		}
	}

	if includesEnrollment(e.Kind) {
		st.InscriptionPaid = true
		// Дата первой оплаты вступительного взноса не перезаписывается.
		if st.InscriptionDate == nil {
			d := e.OccurredAt
			st.InscriptionDate = &d
		}
	}

	if includesDues(e.Kind) {
		st.CotisationPaid = true
		d := e.OccurredAt
		st.LastCotisationDate = &d
	}

	st.IsUpToDate = IsUpToDate(p.Track, st)

	occurred := e.OccurredAt
	st.LastPaymentDate = &occurred
	st.Amount = e.Amount
	st.Currency = e.Currency
	if st.Currency == "" {
		st.Currency = model.DefaultCurrency
	}
	st.PaymentMethod = string(e.Method)
	st.Notes = e.Notes

	if includesDues(e.Kind) {
		due := e.OccurredAt.Add(duesPeriod)
		st.NextDueDate = &due
	} else if st.NextDueDate == nil {
		due := e.OccurredAt.Add(duesPeriod)
		st.NextDueDate = &due
	}

	return Result{Accepted: true, Status: st}
}

// TargetStatus описывает целевое состояние административной корректировки.
type TargetStatus string

const (
	TargetComplete       TargetStatus = "complete"
	TargetEnrollmentOnly TargetStatus = "enrollment_only"
	TargetPending        TargetStatus = "pending"
)

// ParseTargetStatus разбирает целевое состояние корректировки.
func ParseTargetStatus(s string) (TargetStatus, error) {
	switch TargetStatus(s) {
	case TargetComplete, TargetEnrollmentOnly, TargetPending:
		return TargetStatus(s), nil
	}
	return "", fmt.Errorf("unknown target status %q", s)
}

// ForceStatus выставляет платёжное состояние плательщика напрямую, минуя
// все проверки дубликатов. Запись журнала при этом не создаётся: корректировка
// не является финансовым событием, ответственность несёт оператор.
// Неизвестное целевое состояние оставляет запись без изменений.
func ForceStatus(p model.Payer, target TargetStatus, now time.Time) model.PaymentStatus {
	st := p.Status

	switch target {
	case TargetComplete:
		st.InscriptionPaid = true
		st.CotisationPaid = true
		st.IsUpToDate = true
		st.LastPaymentDate = &now
		st.LastCotisationDate = &now
		if st.InscriptionDate == nil {
			st.InscriptionDate = &now
		}
		due := now.Add(duesPeriod)
		st.NextDueDate = &due
	case TargetEnrollmentOnly:
		st.InscriptionPaid = true
		st.CotisationPaid = false
		st.IsUpToDate = false
	case TargetPending:
		st.InscriptionPaid = false
		st.CotisationPaid = false
		st.IsUpToDate = false
	}

	return st
}
