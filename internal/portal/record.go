package portal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// ProcessRecord runs one lookup on the query screen. It never returns an
// error: any failure is folded into the Result so the batch keeps moving.
func (s *Session) ProcessRecord(ctx context.Context, cpf string) Result {
	if s.guard != nil {
		s.guard.resetDialogSeen()
	}

	data, err := s.lookupRecord(ctx, cpf)
	if err != nil {
		kind := classifyRecordErr(err)
		if s.guard != nil && s.guard.dialogSeen() {
			kind = KindDialog
		}
		slog.Warn("record lookup failed", "cpf", cpf, "kind", kind, "error", err)
		return failedResult(cpf, kind)
	}

	slog.Debug("record lookup succeeded", "cpf", cpf, "parcelas_pagas", data.ParcelasPagas, "saldo", data.Saldo)
	return okResult(cpf, data)
}

func (s *Session) lookupRecord(ctx context.Context, cpf string) (GridData, error) {
	deadline := s.cfg.RecordTimeout

	err := s.run(ctx, deadline,
		chromedp.WaitVisible(s.sel.QueryField, chromedp.ByQuery),
		chromedp.Clear(s.sel.QueryField, chromedp.ByQuery),
		chromedp.SendKeys(s.sel.QueryField, cpf, chromedp.ByQuery),
	)
	if err != nil {
		return GridData{}, fmt.Errorf("fill query field: %w", err)
	}

	if s.sel.SearchButton != "" {
		var present bool
		probe := fmt.Sprintf("document.querySelector(%q) !== null", s.sel.SearchButton)
		if err := s.run(ctx, deadline, chromedp.Evaluate(probe, &present)); err != nil {
			return GridData{}, newError(KindEvalFailure, "search trigger probe failed", err)
		}
		if !present {
			return GridData{}, newError(KindElementMissing, fmt.Sprintf("search trigger %q not on page", s.sel.SearchButton), nil)
		}
		if err := s.run(ctx, deadline, chromedp.Click(s.sel.SearchButton, chromedp.ByQuery)); err != nil {
			return GridData{}, fmt.Errorf("click search trigger: %w", err)
		}
	} else {
		blur := fmt.Sprintf("document.querySelector(%q).blur()", s.sel.QueryField)
		if err := s.run(ctx, deadline, chromedp.Evaluate(blur, nil)); err != nil {
			return GridData{}, newError(KindEvalFailure, "query field blur failed", err)
		}
	}

	var gridHTML string
	err = s.run(ctx, deadline,
		chromedp.WaitVisible(s.sel.ResultsGrid, chromedp.ByQuery),
		chromedp.OuterHTML(s.sel.ResultsGrid, &gridHTML, chromedp.ByQuery),
	)
	if err != nil {
		return GridData{}, fmt.Errorf("results grid: %w", err)
	}

	data, err := parseGrid(gridHTML)
	if err != nil {
		return GridData{}, newError(KindGridParse, "results grid did not parse", err)
	}
	return data, nil
}
