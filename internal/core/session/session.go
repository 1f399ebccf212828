package session

import (
	"context"
	"sync"
)

// Session holds state scoped to one document-processing run.
// The LLM file reference cache lives here so uploads are reused within a run and never shared across documents.
type Session struct {
	mu       sync.Mutex
	fileRefs map[string]string
}

func New() *Session {
	return &Session{fileRefs: make(map[string]string)}
}

type contextKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached to ctx or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// FileRef returns the remote file id cached for a local path.
func (s *Session) FileRef(path string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.fileRefs[path]
	return id, ok
}

func (s *Session) SetFileRef(path, id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.fileRefs[path] = id
	s.mu.Unlock()
}
