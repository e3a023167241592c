// Package auth runs the loopback endpoint that receives OAuth redirects.
package auth

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/socialinbox/inbox-cli/internal/fbconnect"
)

// CallbackPath is where the provider redirects to.
const CallbackPath = "/callback"

// DefaultDisplayDelay is how long the result page shows before the browser
// moves on to the dashboard.
const DefaultDisplayDelay = 3 * time.Second

var resultTmpl = template.Must(template.New("result").Parse(resultTemplate))

// CallbackServer receives one OAuth redirect on 127.0.0.1.
type CallbackServer struct {
	// DashboardURL is where the result page sends the browser afterwards.
	DashboardURL string
	DisplayDelay time.Duration
	// Out receives progress messages. Defaults to os.Stderr.
	Out io.Writer

	result   chan fbconnect.CallbackResult
	once     sync.Once
	listener net.Listener
	server   *http.Server
	mu       sync.Mutex
}

// NewCallbackServer creates a server that forwards the browser to
// dashboardURL once the callback has been handled.
func NewCallbackServer(dashboardURL string) *CallbackServer {
	return &CallbackServer{
		DashboardURL: dashboardURL,
		DisplayDelay: DefaultDisplayDelay,
		result:       make(chan fbconnect.CallbackResult, 1),
	}
}

// Start binds a free loopback port and returns the redirect URI to register
// with the provider.
func (s *CallbackServer) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.redirectURI(), nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		_ = s.server.Serve(listener)
	}()
	return s.redirectURI(), nil
}

func (s *CallbackServer) redirectURI() string {
	port := s.listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, CallbackPath)
}

// Wait blocks until the first callback arrives or ctx ends, then shuts the
// server down.
func (s *CallbackServer) Wait(ctx context.Context) (fbconnect.CallbackResult, error) {
	defer s.Close()
	select {
	case res := <-s.result:
		return res, nil
	case <-ctx.Done():
		return fbconnect.CallbackResult{}, ctx.Err()
	}
}

// Close stops the server. In-flight responses are allowed to finish.
func (s *CallbackServer) Close() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close() // Force close if graceful shutdown fails
		return err
	}
	return nil
}

type resultPage struct {
	Success      bool
	Title        string
	Message      string
	Detail       string
	RedirectURL  string
	DelaySeconds int
}

// handleCallback renders the outcome and hands the raw result to Wait. The
// page only describes what arrived; the exchange happens in the caller.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := fbconnect.ParseCallback(r.URL.Query())
	page := describe(res)
	page.RedirectURL = s.DashboardURL
	page.DelaySeconds = int(s.delay().Round(time.Second) / time.Second)

	delivered := false
	s.once.Do(func() {
		s.result <- res
		delivered = true
	})
	if !delivered {
		page = resultPage{
			Title:        "Already handled",
			Message:      "This sign-in window has already been used. You can close it.",
			RedirectURL:  s.DashboardURL,
			DelaySeconds: page.DelaySeconds,
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := resultTmpl.Execute(w, page); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (s *CallbackServer) delay() time.Duration {
	if s.DisplayDelay <= 0 {
		return DefaultDisplayDelay
	}
	return s.DisplayDelay
}

func describe(res fbconnect.CallbackResult) resultPage {
	err := res.Validate("")
	var pe *fbconnect.ProviderError
	switch {
	case err == nil:
		return resultPage{
			Success: true,
			Title:   "Facebook authorized",
			Message: "Return to your terminal to finish connecting your pages.",
		}
	case errors.As(err, &pe):
		detail := pe.Description
		if detail == "" {
			detail = pe.Code
		}
		return resultPage{
			Title:   "Facebook connection cancelled",
			Message: "Facebook did not grant access.",
			Detail:  detail,
		}
	case errors.Is(err, fbconnect.ErrMissingCode):
		return resultPage{
			Title:   "Facebook connection failed",
			Message: "The redirect did not include an authorization code. Please try again.",
		}
	default:
		return resultPage{
			Title:   "Facebook connection failed",
			Message: err.Error(),
		}
	}
}

// OpenBrowser opens url in the default browser. Failures are reported on
// out with a hint to open the URL manually.
func OpenBrowser(out io.Writer, url string) {
	if out == nil {
		out = os.Stderr
	}
	_, _ = fmt.Fprintf(out, "Open this URL in your browser to continue:\n  %s\n", url)
	if shouldSkipAutoBrowserOpen() {
		return
	}
	if err := openBrowser(url); err != nil {
		_, _ = fmt.Fprintf(out, "Could not open browser automatically: %v\n", err)
	}
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}

func shouldSkipAutoBrowserOpen() bool {
	// Always skip browser launch when running under `go test`.
	if flag.Lookup("test.v") != nil {
		return true
	}

	noBrowser := strings.TrimSpace(strings.ToLower(os.Getenv("INBOX_NO_BROWSER")))
	if noBrowser == "1" || noBrowser == "true" || noBrowser == "yes" {
		return true
	}

	return os.Getenv("INBOX_TESTING") == "1"
}
