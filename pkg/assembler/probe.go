package assembler

import (
	"fmt"
	"log/slog"

	"github.com/getmockd/restwire/pkg/locator"
	"github.com/getmockd/restwire/pkg/logging"
)

// CapabilityProbe looks up optional collaborators. Every failure mode reads
// as "absent".
type CapabilityProbe struct {
	locator locator.Locator
	log     *slog.Logger
}

// NewCapabilityProbe creates a probe over l.
func NewCapabilityProbe(l locator.Locator, logger *slog.Logger) *CapabilityProbe {
	return &CapabilityProbe{locator: l, log: logging.OrNop(logger)}
}

// TryGet returns the service registered under name, or false when it is
// missing, its factory fails or panics, or it resolves to nil.
func (p *CapabilityProbe) TryGet(name string) (svc any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Debug("capability factory panicked", "capability", name, "panic", fmt.Sprint(r))
			svc, ok = nil, false
		}
	}()

	if p.locator == nil || !p.locator.Has(name) {
		p.log.Debug("capability absent", "capability", name)
		return nil, false
	}
	svc, err := p.locator.Get(name)
	if err != nil {
		p.log.Debug("capability unavailable", "capability", name, "error", err)
		return nil, false
	}
	if svc == nil {
		return nil, false
	}
	return svc, true
}

// Probe is TryGet narrowed to T. A service of another type is absent.
func Probe[T any](p *CapabilityProbe, name string) (T, bool) {
	var zero T
	svc, ok := p.TryGet(name)
	if !ok {
		return zero, false
	}
	t, ok := svc.(T)
	if !ok {
		p.log.Debug("capability has wrong type", "capability", name, "type", fmt.Sprintf("%T", svc), "want", fmt.Sprintf("%T", (*T)(nil)))
		return zero, false
	}
	return t, true
}
