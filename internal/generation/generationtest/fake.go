// Package generationtest provides a scripted Generator for tests.
package generationtest

import (
	"context"
	"sync"

	"github.com/null-engine/nullengine/internal/generation"
)

// Fake is a scripted generation.Generator. Responses are queued per role and
// consumed in order; the last response for a role repeats once the queue is
// drained. Roles without a script return Default.
type Fake struct {
	Default string

	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []generation.Request
	hook      func(generation.Request)
}

// New returns an empty Fake whose unscripted replies are def.
func New(def string) *Fake {
	return &Fake{
		Default:   def,
		responses: make(map[string][]string),
		errs:      make(map[string]error),
	}
}

// Respond queues replies for role.
func (f *Fake) Respond(role string, replies ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[role] = append(f.responses[role], replies...)
	return f
}

// Fail makes every call for role return err. A nil err clears it.
func (f *Fake) Fail(role string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, role)
	} else {
		f.errs[role] = err
	}
	return f
}

// OnCall registers fn to run, outside the lock, on every call.
func (f *Fake) OnCall(fn func(generation.Request)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = fn
	return f
}

// Calls returns a copy of every request received.
func (f *Fake) Calls() []generation.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]generation.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor counts the requests received for role.
func (f *Fake) CallsFor(role string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Role == role {
			n++
		}
	}
	return n
}

// GenerateText implements generation.Generator.
func (f *Fake) GenerateText(ctx context.Context, req generation.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	hook := f.hook
	err := f.errs[req.Role]
	reply := f.Default
	if queue := f.responses[req.Role]; len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			f.responses[req.Role] = queue[1:]
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// GenerateJSON implements generation.Generator.
func (f *Fake) GenerateJSON(ctx context.Context, req generation.Request, out any) error {
	text, err := f.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	return generation.DecodeJSON(text, out)
}

var _ generation.Generator = (*Fake)(nil)
