package coretest

import (
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Renderer struct {
	mu       sync.Mutex
	views    []core.View
	notices  []core.Notice
	Attached map[domain.UserID]core.Stream
}

func NewRenderer() *Renderer {
	return &Renderer{Attached: make(map[domain.UserID]core.Stream)}
}

func (r *Renderer) AttachStream(id domain.UserID, s core.Stream) {
	r.mu.Lock()
	r.Attached[id] = s
	r.mu.Unlock()
}

func (r *Renderer) DetachStream(id domain.UserID) {
	r.mu.Lock()
	delete(r.Attached, id)
	r.mu.Unlock()
}

func (r *Renderer) Render(v core.View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *Renderer) Notify(n core.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Last returns the most recent view.
func (r *Renderer) Last() core.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return core.View{}
	}
	return r.views[len(r.views)-1]
}

func (r *Renderer) Views() []core.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.View(nil), r.views...)
}

func (r *Renderer) Notices(kind core.NoticeKind) []core.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Notice
	for _, n := range r.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *Renderer) IsAttached(id domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Attached[id]
	return ok
}
