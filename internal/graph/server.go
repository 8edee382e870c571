package graph

import (
	"context"
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cfncheck/cfncheck/internal/logger"
)

// Server shows the latest graph in a browser. The page polls /graph and
// redraws when the text changes.
type Server struct {
	mu    sync.Mutex
	title string
	graph *Graph
}

func NewServer(title string, g *Graph) *Server {
	return &Server{title: title, graph: g}
}

func (s *Server) SetGraph(g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/graph", s.handleGraph)
	return mux
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	logger.Printf("graph viewer serving on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serving graph viewer")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	title := s.title
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHead + html.EscapeString(title) + indexTail))
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	g := s.graph
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if g == nil || len(g.Nodes) == 0 {
		_, _ = w.Write([]byte("graph LR\n  empty[\"No resources\"]\n"))
		return
	}
	_, _ = w.Write([]byte(g.Mermaid()))
}

const indexHead = `<!DOCTYPE html>
<html>
<head>
    <title>cfncheck graph</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <script>
        mermaid.initialize({ startOnLoad: false, theme: 'base' });
        function refresh() {
            fetch('/graph')
                .then(response => response.text())
                .then(text => {
                    const container = document.getElementById('graph-container');
                    if (container.getAttribute('data-last') === text) return;
                    container.setAttribute('data-last', text);
                    container.removeAttribute('data-processed');
                    container.textContent = text;
                    mermaid.run({ nodes: [container] });
                })
                .catch(err => console.error(err));
        }
        setInterval(refresh, 1000);
        window.addEventListener('load', refresh);
    </script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f4f7f6; margin: 0; color: #2c3e50; }
        header { background: #232f3e; color: white; padding: 1rem 2.5rem; }
        h1 { margin: 0; font-size: 1.25rem; font-weight: 600; }
        main { padding: 2rem; max-width: 1200px; margin: 0 auto; }
        #graph-container { background: white; padding: 2.5rem; border-radius: 12px; min-height: 500px; border: 1px solid #e2e8f0; }
    </style>
</head>
<body>
    <header><h1>`

const indexTail = `</h1></header>
    <main>
        <div id="graph-container" class="mermaid"></div>
    </main>
</body>
</html>
`
