// Package cache holds the language server's open documents and their latest
// lint results.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cfncheck/cfncheck/internal/config"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/schema"
	"github.com/cfncheck/cfncheck/internal/validator"
)

// Document is one version of an open template and what linting it produced.
type Document struct {
	URI     string
	Version int
	Text    string
	Result  *validator.Result
	// Err is set when the specification table is inconsistent.
	Err error
}

// Session owns the views of one client connection. Updates are serialised;
// readers use the immutable snapshot of a view.
type Session struct {
	id    string
	table *schema.Table
	views []*View
	mu    sync.Mutex
}

func NewSession(id string, table *schema.Table) *Session {
	return &Session{id: id, table: table}
}

// ViewOf returns the view whose root is the longest prefix of the file's
// path, or the first view.
func (s *Session) ViewOf(uri string) *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := URIToPath(uri)
	var best *View
	longest := -1
	for _, v := range s.views {
		if strings.HasPrefix(path, v.root) && len(v.root) > longest {
			longest = len(v.root)
			best = v
		}
	}
	if best != nil {
		return best
	}
	if len(s.views) > 0 {
		return s.views[0]
	}
	return nil
}

// CreateView adds a workspace rooted at root. Lint options come from the
// nearest .cfncheck.toml; a broken file is logged and ignored.
func (s *Session) CreateView(id, root string) *View {
	opts := validator.Options{}
	if cfg, err := config.Resolve("", root); err != nil {
		logger.Warnf("ignoring config for %s: %v", root, err)
	} else {
		opts = cfg.Options()
	}
	return s.CreateViewWithOptions(id, root, opts)
}

func (s *Session) CreateViewWithOptions(id, root string, opts validator.Options) *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &View{id: id, root: root, session: s, options: opts}
	v.snapshot.Store(&Snapshot{documents: map[string]*Document{}})
	s.views = append(s.views, v)
	logger.Debugf("session %s: view %s rooted at %s", s.id, v.id, root)
	return v
}

type View struct {
	id       string
	root     string
	session  *Session
	options  validator.Options
	snapshot atomic.Value // *Snapshot
}

func (v *View) Snapshot() *Snapshot {
	return v.snapshot.Load().(*Snapshot)
}

// Update lints text and publishes a new snapshot holding it. An older
// version than the one already held is ignored and the held document is
// returned.
func (v *View) Update(uri string, version int, text string) *Document {
	v.session.mu.Lock()
	defer v.session.mu.Unlock()

	old := v.Snapshot()
	if cur, ok := old.documents[uri]; ok && version < cur.Version {
		return cur
	}

	doc := &Document{URI: uri, Version: version, Text: text}
	doc.Result, doc.Err = validator.Lint(v.session.table, []byte(text), v.options)

	next := old.clone()
	next.documents[uri] = doc
	v.snapshot.Store(next)
	return doc
}

func (v *View) Close(uri string) {
	v.session.mu.Lock()
	defer v.session.mu.Unlock()

	next := v.Snapshot().clone()
	delete(next.documents, uri)
	v.snapshot.Store(next)
}

// Snapshot is an immutable set of documents.
type Snapshot struct {
	documents map[string]*Document
}

func (s *Snapshot) Document(uri string) (*Document, bool) {
	d, ok := s.documents[uri]
	return d, ok
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{documents: make(map[string]*Document, len(s.documents)+1)}
	for k, d := range s.documents {
		next.documents[k] = d
	}
	return next
}

func URIToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
