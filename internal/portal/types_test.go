package portal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorFormatting(t *testing.T) {
	t.Run("without_cause", func(t *testing.T) {
		err := NewError(CodeLogin, "post-login marker did not appear", nil)
		want := "LOGIN: post-login marker did not appear"
		if err.Error() != want {
			t.Fatalf("Error() = %q; want %q", err.Error(), want)
		}
	})

	t.Run("with_cause", func(t *testing.T) {
		cause := errors.New("context deadline exceeded")
		err := NewError(CodeNavigation, "menu menu_proposta not reachable", cause)
		want := "NAVIGATION: menu menu_proposta not reachable: context deadline exceeded"
		if err.Error() != want {
			t.Fatalf("Error() = %q; want %q", err.Error(), want)
		}
	})

	t.Run("unwraps_cause", func(t *testing.T) {
		cause := context.DeadlineExceeded
		err := NewError(CodeSession, "browser endpoint unreachable", cause)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("errors.Is() = false; want true")
		}
		var coded *CodedError
		if !errors.As(err, &coded) {
			t.Fatalf("errors.As() = false; want *CodedError")
		}
		if coded.Code != CodeSession {
			t.Fatalf("code = %s; want %s", coded.Code, CodeSession)
		}
	})
}

func TestClassifyRecordErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline_is_timeout", context.DeadlineExceeded, KindTimeout},
		{"wrapped_deadline_is_timeout", fmt.Errorf("fill query field: %w", context.DeadlineExceeded), KindTimeout},
		{"kinded_error_passes_through", NewError(KindElementMissing, "search trigger gone", nil), KindElementMissing},
		{"grid_parse_passes_through", NewError(KindGridParse, "results grid did not parse", errors.New("no data row")), KindGridParse},
		{"fatal_code_is_not_a_kind", NewError(CodeLogin, "not a record failure", nil), KindEvalFailure},
		{"unknown_error_is_eval_failure", errors.New("boom"), KindEvalFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyRecordErr(tt.err); got != tt.want {
				t.Fatalf("classifyRecordErr() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	t.Run("ok_result_carries_payload", func(t *testing.T) {
		res := okResult("12345678901", GridData{ParcelasPagas: 12, Saldo: 1235.00})
		if !res.OK() {
			t.Fatalf("OK() = false; want true")
		}
		if res.Mensagem != MessageOK {
			t.Fatalf("mensagem = %q; want %q", res.Mensagem, MessageOK)
		}
		if res.ParcelasPagas == nil || *res.ParcelasPagas != 12 {
			t.Fatalf("parcelas_pagas = %v; want 12", res.ParcelasPagas)
		}
		if res.Saldo == nil || *res.Saldo != 1235.00 {
			t.Fatalf("saldo = %v; want 1235.00", res.Saldo)
		}
	})

	t.Run("failed_result_has_kind_message_and_nil_payload", func(t *testing.T) {
		res := failedResult("12345678901", KindTimeout)
		if res.OK() {
			t.Fatalf("OK() = true; want false")
		}
		if res.Mensagem != "erro: TIMEOUT" {
			t.Fatalf("mensagem = %q; want %q", res.Mensagem, "erro: TIMEOUT")
		}
		if res.ParcelasPagas != nil || res.Saldo != nil {
			t.Fatalf("payload = (%v, %v); want (nil, nil)", res.ParcelasPagas, res.Saldo)
		}
	})
}
