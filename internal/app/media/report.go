package media

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/Meet/internal/domain"
)

// Report is the per-link outcome of one track substitution.
type Report struct {
	Applied []domain.UserID
	Failed  map[domain.UserID]error
}

func (r *Report) fail(id domain.UserID, err error) {
	if r.Failed == nil {
		r.Failed = make(map[domain.UserID]error)
	}
	r.Failed[id] = err
}

func (r Report) Partial() bool { return len(r.Failed) > 0 }

// Err joins every per-link failure, or returns nil.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, id := range r.FailedPeers() {
		errs = append(errs, r.Failed[id])
	}
	return errors.Join(errs...)
}

func (r Report) FailedPeers() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.Failed))
	for id := range r.Failed {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r Report) String() string {
	if !r.Partial() {
		return fmt.Sprintf("switched %d peer(s)", len(r.Applied))
	}
	ids := make([]string, 0, len(r.Failed))
	for _, id := range r.FailedPeers() {
		ids = append(ids, string(id))
	}
	return fmt.Sprintf("switched %d peer(s), failed for %s", len(r.Applied), strings.Join(ids, ", "))
}
