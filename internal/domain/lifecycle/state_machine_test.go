package lifecycle

import (
	"errors"
	"testing"
)

// TestApply_FromPending проверяет все решения из PENDING.
func TestApply_FromPending(t *testing.T) {
	tests := []struct {
		decision Decision
		want     Status
	}{
		{DecisionApprove, StatusApproved},
		{DecisionReject, StatusRejected},
		{DecisionRequestChanges, StatusChangesRequested},
	}

	for _, tt := range tests {
		got, err := Apply(StatusPending, tt.decision)
		if err != nil {
			t.Errorf("Apply(PENDING, %s): неожиданная ошибка: %v", tt.decision, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Apply(PENDING, %s) = %s, ожидалось %s", tt.decision, got, tt.want)
		}
	}
}

// TestApply_OnlyFromPending проверяет, что ревью из других статусов запрещено.
func TestApply_OnlyFromPending(t *testing.T) {
	from := []Status{StatusNone, StatusApproved, StatusRejected, StatusChangesRequested}
	decisions := []Decision{DecisionApprove, DecisionReject, DecisionRequestChanges}

	for _, f := range from {
		if CanReview(f) {
			t.Errorf("CanReview(%q) = true, ожидалось false", f)
		}
		for _, d := range decisions {
			got, err := Apply(f, d)
			if err == nil {
				t.Errorf("Apply(%q, %s): ожидалась ошибка", f, d)
				continue
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.Code != CodeInvalidTransition {
				t.Errorf("Apply(%q, %s): ожидался код INVALID_TRANSITION, получено %v", f, d, err)
			}
			if got != f {
				t.Errorf("Apply(%q, %s): статус изменился на %q", f, d, got)
			}
		}
	}
}

func TestApply_UnknownDecision(t *testing.T) {
	_, err := Apply(StatusPending, Decision("ARCHIVE"))
	var te *TransitionError
	if !errors.As(err, &te) || te.Code != CodeInvalidDecision {
		t.Fatalf("ожидался код INVALID_DECISION, получено %v", err)
	}
}

func TestCanUpload(t *testing.T) {
	tests := []struct {
		from Status
		want bool
	}{
		{StatusNone, true},
		{StatusPending, true},
		{StatusRejected, true},
		{StatusChangesRequested, true},
		{StatusApproved, false},
	}
	for _, tt := range tests {
		if got := CanUpload(tt.from); got != tt.want {
			t.Errorf("CanUpload(%q) = %v, ожидалось %v", tt.from, got, tt.want)
		}
	}
}

func TestRequiresFeedback(t *testing.T) {
	if RequiresFeedback(DecisionApprove) {
		t.Error("APPROVE не требует комментария")
	}
	if !RequiresFeedback(DecisionReject) || !RequiresFeedback(DecisionRequestChanges) {
		t.Error("REJECT и REQUEST_CHANGES требуют комментарий")
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusApproved) {
		t.Error("APPROVED должен быть конечным")
	}
	if IsTerminal(StatusRejected) {
		t.Error("REJECTED не конечный: допустима повторная загрузка")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" pending "); err != nil || s != StatusPending {
		t.Errorf("ParseStatus(pending) = %q, %v", s, err)
	}
	if _, err := ParseStatus("DRAFT"); err == nil {
		t.Error("ParseStatus(DRAFT): ожидалась ошибка")
	}
	if _, err := ParseStatus(""); err == nil {
		t.Error("ParseStatus(\"\"): ожидалась ошибка")
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := ParseDecision("request_changes"); err != nil || d != DecisionRequestChanges {
		t.Errorf("ParseDecision(request_changes) = %q, %v", d, err)
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Error("ParseDecision(maybe): ожидалась ошибка")
	}
}
