package portal

import (
	"context"
	"errors"
	"fmt"
)

// Fatal codes: any error carrying one of these aborts the whole run.
const (
	CodeConfiguration = "CONFIGURATION"
	CodeSession       = "SESSION"
	CodeLogin         = "LOGIN"
	CodeNavigation    = "NAVIGATION"
	CodeInput         = "INPUT"
)

// Per-record failure kinds. These mark a single Result as failed and never
// abort the batch.
const (
	KindTimeout        = "TIMEOUT"
	KindElementMissing = "ELEMENT_MISSING"
	KindDialog         = "DIALOG"
	KindGridParse      = "GRID_PARSE"
	KindEvalFailure    = "EVAL_FAILURE"
)

// CodedError is a typed error used for stable classification and API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError. Exported so the run orchestration can tag
// startup failures from neighboring packages with the right code.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

func newError(code, msg string, cause error) error {
	return NewError(code, msg, cause)
}

// Result statuses as they appear in the stream log and workbook.
const (
	StatusOK    = "ok"
	StatusError = "erro"
)

// MessageOK is the mensagem recorded for a successful lookup.
const MessageOK = "extração concluída"

// Result is the outcome of one record lookup. Payload fields are nil when
// the lookup failed.
type Result struct {
	CPF           string   `json:"cpf"`
	Status        string   `json:"status"`
	Mensagem      string   `json:"mensagem"`
	ParcelasPagas *int     `json:"parcelas_pagas,omitempty"`
	Saldo         *float64 `json:"saldo,omitempty"`
}

// OK reports whether the lookup succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

func okResult(cpf string, data GridData) Result {
	parcelas := data.ParcelasPagas
	saldo := data.Saldo
	return Result{
		CPF:           cpf,
		Status:        StatusOK,
		Mensagem:      MessageOK,
		ParcelasPagas: &parcelas,
		Saldo:         &saldo,
	}
}

func failedResult(cpf, kind string) Result {
	return Result{
		CPF:      cpf,
		Status:   StatusError,
		Mensagem: "erro: " + kind,
	}
}

// classifyRecordErr maps a lookup error to a per-record failure kind.
// Already-kinded errors pass through; a blown deadline is a TIMEOUT;
// anything else surfaced from the page is an EVAL_FAILURE.
func classifyRecordErr(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case KindTimeout, KindElementMissing, KindDialog, KindGridParse, KindEvalFailure:
			return coded.Code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindEvalFailure
}
