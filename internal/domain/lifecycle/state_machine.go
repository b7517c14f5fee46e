// Пакет lifecycle — конечный автомат статусов работы студента.
//
// Жизненный цикл:
//   - загрузка создаёт работу в статусе PENDING
//   - ревью допустимо только из PENDING: APPROVE → APPROVED,
//     REJECT → REJECTED, REQUEST_CHANGES → CHANGES_REQUESTED
//   - повторная загрузка из PENDING, REJECTED, CHANGES_REQUESTED
//     возвращает работу в PENDING
//   - APPROVED — конечный статус
//
// Пакет не хранит состояние: матрица переходов применяется к статусу,
// прочитанному из хранилища записей.
package lifecycle

import (
	"fmt"
	"strings"
)

// Status — статус работы.
type Status string

const (
	// StatusNone — работы ещё нет (до первой загрузки)
	StatusNone Status = ""
	// StatusPending — ожидает проверки
	StatusPending Status = "PENDING"
	// StatusApproved — принята (конечный статус)
	StatusApproved Status = "APPROVED"
	// StatusRejected — отклонена
	StatusRejected Status = "REJECTED"
	// StatusChangesRequested — требуются исправления
	StatusChangesRequested Status = "CHANGES_REQUESTED"
)

// Decision — решение администратора по работе.
type Decision string

const (
	DecisionApprove        Decision = "APPROVE"
	DecisionReject         Decision = "REJECT"
	DecisionRequestChanges Decision = "REQUEST_CHANGES"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidDecision   = "INVALID_DECISION"
)

// reviewTransitions — матрица переходов при ревью.
// Ключ — текущий статус, значение — результат решения.
var reviewTransitions = map[Status]map[Decision]Status{
	StatusPending: {
		DecisionApprove:        StatusApproved,
		DecisionReject:         StatusRejected,
		DecisionRequestChanges: StatusChangesRequested,
	},
	StatusApproved:         {},
	StatusRejected:         {},
	StatusChangesRequested: {},
}

// uploadAllowed — статусы, из которых допустима (повторная) загрузка.
var uploadAllowed = map[Status]bool{
	StatusNone:             true,
	StatusPending:          true,
	StatusRejected:         true,
	StatusChangesRequested: true,
}

// CanUpload проверяет, может ли студент загрузить файл поверх работы
// в статусе from. StatusNone означает, что работы ещё нет.
func CanUpload(from Status) bool {
	return uploadAllowed[from]
}

// CanReview проверяет, допустимо ли ревью работы в статусе from.
func CanReview(from Status) bool {
	return len(reviewTransitions[from]) > 0
}

// Apply возвращает статус после решения decision над работой в статусе from.
//
// Ошибки:
//   - INVALID_DECISION — неизвестное решение
//   - INVALID_TRANSITION — из статуса from ревью недопустимо
func Apply(from Status, decision Decision) (Status, error) {
	if !IsValidDecision(decision) {
		return from, &TransitionError{
			Code:    CodeInvalidDecision,
			Message: fmt.Sprintf("недопустимое решение: %q", decision),
		}
	}
	to, ok := reviewTransitions[from][decision]
	if !ok {
		return from, &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("решение %s недопустимо для работы в статусе %s", decision, displayStatus(from)),
		}
	}
	return to, nil
}

// RequiresFeedback — для отклонения и запроса исправлений нужен комментарий.
func RequiresFeedback(d Decision) bool {
	return d == DecisionReject || d == DecisionRequestChanges
}

// IsTerminal проверяет, является ли статус конечным.
func IsTerminal(s Status) bool {
	return s == StatusApproved
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, INVALID_DECISION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidStatus проверяет, является ли строка допустимым статусом работы.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusChangesRequested:
		return true
	default:
		return false
	}
}

// IsValidDecision проверяет, является ли строка допустимым решением.
func IsValidDecision(d Decision) bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestChanges:
		return true
	default:
		return false
	}
}

// ParseStatus преобразует строку в Status (без учёта регистра).
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !IsValidStatus(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: PENDING, APPROVED, REJECTED, CHANGES_REQUESTED", s)
	}
	return st, nil
}

// ParseDecision преобразует строку в Decision (без учёта регистра).
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	if !IsValidDecision(d) {
		return "", fmt.Errorf("недопустимое решение: %q, допустимые: APPROVE, REJECT, REQUEST_CHANGES", s)
	}
	return d, nil
}

func displayStatus(s Status) string {
	if s == StatusNone {
		return "<нет работы>"
	}
	return string(s)
}
