package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/noticesync/models"
)

// State is a Session's position in the login flow.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateCredentialsSubmitted
	StateSecurityAnswered
	StateOTPRequested
	StateAuthenticated
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateCredentialsSubmitted:
		return "credentials_submitted"
	case StateSecurityAnswered:
		return "security_answered"
	case StateOTPRequested:
		return "otp_requested"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UnknownQuestionError reports a security question with no configured answer.
type UnknownQuestionError struct {
	Question string
	Known    []string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("no answer configured for security question %q (known: %s)",
		e.Question, strings.Join(e.Known, " | "))
}

// SessionOptions configure a Session.
type SessionOptions struct {
	LoginURL  string
	Selectors LoginSelectors

	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	SettleTimeout     time.Duration

	Logger *slog.Logger

	// Now stamps the OTP request. Defaults to time.Now.
	Now func() time.Time
}

// Session owns one browser and drives a single login through to an
// authenticated page. It is used by one run and is not reusable.
type Session struct {
	creds    models.Credentials
	launcher Launcher
	otp      OTPSource
	opts     SessionOptions
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	browser Browser
	page    Page
}

// NewSession returns a Session in StateCreated. No browser is started
// until Init.
func NewSession(creds models.Credentials, launcher Launcher, otp OTPSource, opts SessionOptions) *Session {
	if opts.Selectors == (LoginSelectors{}) {
		opts.Selectors = DefaultLoginSelectors()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		creds:    creds,
		launcher: launcher,
		otp:      otp,
		opts:     opts,
		log:      log.With("component", "session", "roll_no", creds.RollNo),
		state:    StateCreated,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init launches the browser and opens the page the login will run in.
// A failed Init still leaves anything it started for Close to release.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return models.NewSyncError(models.ErrKindSessionNotReady,
			fmt.Sprintf("init called in state %s", s.state), nil)
	}

	browser, err := s.launcher.Launch(ctx)
	if err != nil {
		s.state = StateFailed
		return models.NewSyncError(models.ErrKindBrowserInit, "failed to launch browser", err)
	}
	s.browser = browser

	page, err := browser.NewPage(ctx)
	if err != nil {
		s.state = StateFailed
		return models.NewSyncError(models.ErrKindBrowserInit, "failed to open page", err)
	}
	s.page = page
	s.state = StateInitialized
	s.log.Info("browser ready")
	return nil
}

// Login performs the credential, security-question and OTP steps in order.
// On success the session is authenticated and Page may be used for scraping.
func (s *Session) Login(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state != StateInitialized {
		state := s.state
		s.mu.Unlock()
		return models.NewSyncError(models.ErrKindSessionNotReady,
			fmt.Sprintf("login called in state %s", state), nil)
	}
	page := s.page
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.setState(StateFailed)
			s.log.Warn("login failed", "error", err)
		}
	}()

	sel := s.opts.Selectors
	start := time.Now()

	// Step 1: login page.
	if err := bounded(ctx, s.opts.NavigationTimeout, func(ctx context.Context) error {
		return page.Navigate(ctx, s.opts.LoginURL)
	}); err != nil {
		return models.NewSyncError(models.ErrKindNavigation, "could not load login page", err)
	}

	// Step 2: identity and password.
	if err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		if err := page.WaitVisible(ctx, sel.RollNo); err != nil {
			return err
		}
		if err := page.Fill(ctx, sel.RollNo, s.creds.RollNo); err != nil {
			return err
		}
		return page.Fill(ctx, sel.Password, s.creds.Password)
	}); err != nil {
		return models.NewSyncError(models.ErrKindFormNotFound, "login form did not appear", err)
	}
	s.setState(StateCredentialsSubmitted)
	s.log.Debug("credentials entered")

	// Step 3: security question.
	var question string
	if err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		if err := page.WaitVisible(ctx, sel.QuestionPrompt); err != nil {
			return err
		}
		q, err := page.Text(ctx, sel.Question)
		question = strings.TrimSpace(q)
		return err
	}); err != nil {
		if rejected := s.rejection(ctx, page); rejected != nil {
			return rejected
		}
		return models.NewSyncError(models.ErrKindFormNotFound, "security question did not appear", err)
	}

	answer, ok := s.creds.SecurityAnswers[question]
	if !ok || question == "" || answer == "" {
		qerr := &UnknownQuestionError{Question: question, Known: s.knownQuestions()}
		return models.NewSyncError(models.ErrKindUnknownQuestion, qerr.Error(), qerr)
	}

	if err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		return page.Fill(ctx, sel.Answer, answer)
	}); err != nil {
		return models.NewSyncError(models.ErrKindFormNotFound, "could not fill security answer", err)
	}
	s.setState(StateSecurityAnswered)
	s.log.Debug("security question answered")

	// Step 4: request the OTP. The timestamp is taken before the click so
	// the store's match window can never start after the dispatch.
	requestedAt := s.opts.Now()
	if err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		return page.Click(ctx, sel.RequestOTP)
	}); err != nil {
		return models.NewSyncError(models.ErrKindFormNotFound, "could not request OTP", err)
	}
	s.setState(StateOTPRequested)
	s.log.Info("OTP requested", "requested_at", requestedAt.Format(time.RFC3339))

	// Step 5: rendezvous with the OTP store.
	code, err := s.otp.FetchOTP(ctx, s.creds.RollNo, requestedAt)
	if err != nil {
		var se *models.SyncError
		if errors.As(err, &se) {
			return err
		}
		return models.NewSyncError(models.ErrKindOTPTimeout, "OTP was not retrieved", err)
	}

	// Step 6: submit and verify.
	if err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		if err := page.Fill(ctx, sel.OTP, code); err != nil {
			return err
		}
		return page.Click(ctx, sel.Submit)
	}); err != nil {
		return models.NewSyncError(models.ErrKindFormNotFound, "could not submit OTP", err)
	}

	if err := bounded(ctx, s.opts.SettleTimeout, page.Settle); err != nil {
		s.log.Debug("page did not settle after submit", "error", err)
	}

	texts, err := s.visibleErrors(ctx, page)
	if err != nil {
		return models.NewSyncError(models.ErrKindLoginRejected, "could not verify login outcome", err)
	}
	if len(texts) > 0 {
		return models.NewSyncError(models.ErrKindLoginRejected, strings.Join(texts, "; "), nil)
	}

	s.setState(StateAuthenticated)
	s.log.Info("login succeeded", "elapsed", time.Since(start).String())
	return nil
}

// Page returns the authenticated page.
func (s *Session) Page() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return nil, models.NewSyncError(models.ErrKindSessionNotReady,
			fmt.Sprintf("session is %s, not authenticated", s.state), nil)
	}
	return s.page, nil
}

// Close releases the browser. It is safe to call in any state and more
// than once; only the first call does any work.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	browser := s.browser
	s.state = StateClosed
	s.browser = nil
	s.page = nil
	s.mu.Unlock()

	if browser == nil {
		return nil
	}
	if err := browser.Close(); err != nil {
		s.log.Warn("browser release failed", "error", err)
		return models.NewSyncError(models.ErrKindCleanup, "failed to release browser", err)
	}
	s.log.Debug("browser closed")
	return nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = next
}

// rejection reports a LOGIN_REJECTED error when the portal shows an error
// indicator, or nil.
func (s *Session) rejection(ctx context.Context, page Page) error {
	texts, err := s.visibleErrors(ctx, page)
	if err != nil || len(texts) == 0 {
		return nil
	}
	return models.NewSyncError(models.ErrKindLoginRejected, strings.Join(texts, "; "), nil)
}

func (s *Session) visibleErrors(ctx context.Context, page Page) ([]string, error) {
	var texts []string
	err := bounded(ctx, s.opts.ElementTimeout, func(ctx context.Context) error {
		var err error
		texts, err = page.VisibleTexts(ctx, s.opts.Selectors.Error)
		return err
	})
	return texts, err
}

func (s *Session) knownQuestions() []string {
	known := make([]string, 0, len(s.creds.SecurityAnswers))
	for q := range s.creds.SecurityAnswers {
		known = append(known, q)
	}
	sort.Strings(known)
	return known
}
