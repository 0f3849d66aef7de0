package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mvp-joe/pew/internal/bridge"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
)

const (
	defaultUIRoot = "src/files/web/index.html"
	// bridgePrefix is the URL path the page's bridge posts messages to.
	bridgePrefix = "/pew/"
)

// opener launches a URL in the user's browser.
type opener func(ctx context.Context, s *session, url string) error

// browserQuery turns app arguments into a query string: "--debug" and
// "lang=en" become "?debug&lang=en".
func browserQuery(args []string) string {
	var parts []string
	for _, arg := range args {
		if arg == "" {
			continue
		}
		parts = append(parts, strings.TrimPrefix(arg, "--"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// newBrowserBridge registers the messages a page can send while it runs
// in a plain browser. shutdown stops the server.
func newBrowserBridge(s *session, shutdown func()) *bridge.Dispatcher {
	d := bridge.NewDispatcher(bridgePrefix, s.log)
	d.Handle("log", func(ctx context.Context, msg bridge.Message) error {
		s.log.WithField("source", "page").Info(strings.Join(msg.Args, " "))
		return nil
	})
	d.Handle("load_complete", func(ctx context.Context, msg bridge.Message) error {
		s.log.Debug("Page finished loading")
		return nil
	})
	d.Handle("shutdown", func(ctx context.Context, msg bridge.Message) error {
		shutdown()
		return nil
	})
	return d
}

func bridgeHandler(d *bridge.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := d.Dispatch(r.Context(), r.URL.RequestURI())
		switch {
		case errors.Is(err, bridge.ErrUnknownMethod):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

// newBrowserMux serves the UI directory, the bridge endpoint and a
// script pointing the page's bridge at it.
func newBrowserMux(uiDir string, d *bridge.Dispatcher) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(uiDir)))
	mux.Handle(bridgePrefix, bridgeHandler(d))
	mux.HandleFunc("/pew.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprintln(w, d.SetProtocolScript())
	})
	return mux
}

// serveBrowser serves the project's web UI on a local port until ctx is
// done or the page sends a shutdown message.
func serveBrowser(ctx context.Context, s *session, args []string, open opener) error {
	uiRoot := s.project().String("ui_root")
	if uiRoot == "" {
		uiRoot = defaultUIRoot
	}
	if !filepath.IsAbs(uiRoot) {
		uiRoot = filepath.Join(s.root, uiRoot)
	}
	if !files.Exists(uiRoot) {
		return pewerr.Preconditionf("UI root %s does not exist; set ui_root in project_info.json", uiRoot)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start local server: %w", err)
	}
	srv := &http.Server{
		Handler:           newBrowserMux(filepath.Dir(uiRoot), newBrowserBridge(s, cancel)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	url := fmt.Sprintf("http://%s/%s%s", ln.Addr(), filepath.Base(uiRoot), browserQuery(args))
	fmt.Printf("URL: %s\n", url)
	fmt.Println("If your browser does not open within a few seconds, copy and paste this URL to test.")
	if open != nil {
		if err := open(ctx, s, url); err != nil {
			s.log.WithError(err).Warn("Could not open a browser")
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

// browserOpeners are the commands that can open a URL, by platform
// convention. The global setting browser.opener picks one explicitly.
var browserOpeners = []struct{ name, tool string }{
	{"xdg-open", "xdg-open"},
	{"open", "open"},
	{"rundll32", "rundll32"},
}

func openInBrowser(ctx context.Context, s *session, url string) error {
	providers := make([]bridge.Provider, 0, len(browserOpeners))
	for _, o := range browserOpeners {
		tool := o.tool
		providers = append(providers, bridge.Provider{
			Name: o.name,
			Probe: func() error {
				_, err := s.runner.LookPath(tool)
				return err
			},
		})
	}

	var preferred []string
	if s.global != nil {
		if name, ok := s.global.Get("browser.opener"); ok && name != "" {
			preferred = append(preferred, name)
		}
	}
	backend, err := bridge.SelectBackend(providers, preferred...)
	if err != nil {
		return err
	}

	args := []string{url}
	if backend.Name == "rundll32" {
		args = []string{"url.dll,FileProtocolHandler", url}
	}
	return s.runner.Run(ctx, runner.Command{Name: backend.Name, Args: args})
}
