package deeplift

import (
	"github.com/openfluke/lift/nn"
)

// session tracks the gradient interceptors one attribution call
// installed, so removal touches exactly those and nothing else.
type session struct {
	installed []*nn.Layer
}

// instrument installs rule-backed interceptors on every layer whose kind
// has a registry entry. Layers already carrying an interceptor are
// skipped, which keeps repeated instrumentation idempotent. Kinds with no
// entry, or with an entry explicitly set to nil, fall through to ordinary
// gradients; a warning notes this for kinds ordinary differentiation
// cannot stand in for.
func (e *Explainer) instrument() *session {
	s := &session{}
	for _, l := range e.model.Layers() {
		if l.GradHook() != nil {
			continue
		}
		rule := e.rules[l.Kind]
		if rule == nil {
			if !linearKind(l.Kind) {
				e.logger.Warn("no rescale rule registered for layer kind, falling back to ordinary gradients",
					"kind", l.Kind.String())
			}
			continue
		}
		l.SetGradHook(makeHook(rule, e.eps))
		s.installed = append(s.installed, l)
	}
	return s
}

// remove uninstalls every interceptor this session installed. Safe to
// call more than once.
func (s *session) remove() {
	for _, l := range s.installed {
		l.SetGradHook(nil)
	}
	s.installed = nil
}

func makeHook(rule Rule, eps float64) nn.GradHook {
	return func(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor) (*nn.Tensor, error) {
		return rule(l, in, out, gradIn, gradOut, eps)
	}
}
