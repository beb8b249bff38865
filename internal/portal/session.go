package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const screenshotTimeout = 10 * time.Second

// Config carries the session-level knobs. Timeouts mirror the portal's
// operator tooling: LoginTimeout bounds each login and navigation wait,
// RecordTimeout bounds one record lookup end to end.
type Config struct {
	CDPURL        string
	PortalURL     string
	TabURLFilter  string
	LoginTimeout  time.Duration
	RecordTimeout time.Duration
}

// Session drives one portal tab over CDP.
type Session struct {
	cfg Config
	sel *Selectors

	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	guard *dialogGuard
}

func NewSession(cfg Config, sel *Selectors) *Session {
	return &Session{cfg: cfg, sel: sel}
}

// Connect attaches to the browser behind cfg.CDPURL, picks the portal tab
// and enables the network and page domains on it. A raw-CDP dialog guard is
// attached alongside; losing it degrades dialog handling but not the run.
func (s *Session) Connect(ctx context.Context) error {
	slog.Info("connecting to browser", "cdp_url", s.cfg.CDPURL)

	s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), s.cfg.CDPURL)

	tempCtx, tempCancel := chromedp.NewContext(s.allocCtx)
	defer tempCancel()

	if err := chromedp.Run(tempCtx); err != nil {
		s.allocCancel()
		return newError(CodeSession, "browser endpoint unreachable", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		s.allocCancel()
		return newError(CodeSession, "target enumeration failed", err)
	}

	var tabID target.ID
	var tabURL string
	for _, t := range targets {
		if t.Type != "page" || !s.matchesTab(t.URL) {
			continue
		}
		tabID = t.TargetID
		tabURL = t.URL
		break
	}
	if tabID == "" {
		s.allocCancel()
		return newError(CodeSession, fmt.Sprintf("no page tab matching filter %q", s.cfg.TabURLFilter), nil)
	}

	s.ctx, s.cancel = chromedp.NewContext(s.allocCtx, chromedp.WithTargetID(tabID))
	if err := chromedp.Run(s.ctx, network.Enable(), page.Enable()); err != nil {
		s.Close()
		return newError(CodeSession, "network/page domain enable failed", err)
	}

	guard, err := attachDialogGuard(ctx, s.cfg.CDPURL, string(tabID))
	if err != nil {
		slog.Warn("dialog guard unavailable, javascript dialogs will stall records", "error", err)
	} else {
		s.guard = guard
	}

	slog.Info("attached to portal tab", "target_id", tabID, "url", tabURL)
	return nil
}

// Context exposes the tab context so callers can hook chromedp listeners
// (network tracing) onto this session.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Authenticate loads the login page, submits credentials and waits for the
// post-login marker. Two bounded stages: form load, then submit.
func (s *Session) Authenticate(ctx context.Context, user, password string) error {
	slog.Info("logging in", "portal_url", s.cfg.PortalURL, "user", user)

	err := s.run(ctx, s.cfg.LoginTimeout,
		chromedp.Navigate(s.cfg.PortalURL),
		chromedp.WaitVisible(s.sel.UserField, chromedp.ByQuery),
	)
	if err != nil {
		return newError(CodeLogin, "login form did not load", err)
	}

	err = s.run(ctx, s.cfg.LoginTimeout,
		chromedp.Clear(s.sel.UserField, chromedp.ByQuery),
		chromedp.SendKeys(s.sel.UserField, user, chromedp.ByQuery),
		chromedp.Clear(s.sel.PassField, chromedp.ByQuery),
		chromedp.SendKeys(s.sel.PassField, password, chromedp.ByQuery),
		chromedp.Click(s.sel.LoginButton, chromedp.ByQuery),
		chromedp.WaitVisible(s.sel.PostLoginMarker(), chromedp.ByQuery),
	)
	if err != nil {
		return newError(CodeLogin, "post-login marker did not appear", err)
	}

	slog.Info("login completed")
	return nil
}

// NavigateToQuery walks the two-level menu to the record query screen.
func (s *Session) NavigateToQuery(ctx context.Context) error {
	steps := []struct {
		name     string
		selector string
	}{
		{"menu_cadastro", s.sel.MenuRegister},
		{"menu_proposta", s.sel.MenuProposal},
	}
	for _, step := range steps {
		if err := s.run(ctx, s.cfg.LoginTimeout, chromedp.Click(step.selector, chromedp.ByQuery)); err != nil {
			return newError(CodeNavigation, fmt.Sprintf("menu %s not reachable", step.name), err)
		}
		slog.Debug("menu opened", "menu", step.name)
	}
	return nil
}

// Screenshot captures the current viewport, for failure evidence.
func (s *Session) Screenshot() ([]byte, error) {
	sctx, cancel := context.WithTimeout(s.ctx, screenshotTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(sctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) Close() error {
	if s.guard != nil {
		s.guard.close()
		s.guard = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	slog.Info("portal session closed")
	return nil
}

// run executes actions on the session tab under a deadline, honoring
// cancellation from the caller's context as well.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	rctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) matchesTab(url string) bool {
	if s.cfg.TabURLFilter == "" {
		return !strings.HasPrefix(url, "devtools://")
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(s.cfg.TabURLFilter))
}
