package descrambler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

var ErrUnknownService = errors.New("descrambler: unknown service")

// KeyState tracks how far a descrambler got in obtaining control words.
type KeyState int

const (
	StateInit KeyState = iota
	StateReady
	StateResolved
	StateForbidden
	StateFatal
	StateIdle
)

var keyStateNames = [...]string{"init", "ready", "resolved", "forbidden", "fatal", "idle"}

func (s KeyState) String() string {
	if s < 0 || int(s) >= len(keyStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return keyStateNames[s]
}

// ParseKeyState maps a state name back to its KeyState.
func ParseKeyState(s string) (KeyState, error) {
	i := slices.Index(keyStateNames[:], strings.ToLower(strings.TrimSpace(s)))
	if i < 0 {
		return StateInit, fmt.Errorf("descrambler: unknown key state %q", s)
	}
	return KeyState(i), nil
}

// Outcome is the result of routing packets through a service.
type Outcome int

const (
	OutcomeForbidden Outcome = -1 // every descrambler was refused keys
	OutcomePending   Outcome = 0  // nobody holds keys yet
	OutcomeResolved  Outcome = 1  // packets went to a descrambler
)

// CAID is one conditional access system announced by a service.
type CAID struct {
	ID       uint16
	Provider uint32
}

// ServiceInfo identifies a service when it starts.
type ServiceInfo struct {
	SID       uint16
	TSID      uint16
	ForceCAID uint16 // restricts descramblers to this CAID when set
	CAIDs     []CAID
}

// Client is a control word source attached to every starting service.
type Client interface {
	Name() string
	Start(r *Registry, svc *Service)
}

type descramblerEntry struct {
	name  string
	state KeyState
	ctx   *Context
}

// DescramblerInfo is a snapshot of one descrambler of a service.
type DescramblerInfo struct {
	Name  string
	State KeyState
	Kind  Kind
}

// Service holds the descramblers of one running service. Calls are
// serialised by the service lock.
type Service struct {
	info ServiceInfo
	opts Options

	mu           deadlock.Mutex
	descramblers []*descramblerEntry
}

func (s *Service) Info() ServiceInfo { return s.info }

// Descramble hands tsb to the first descrambler holding keys.
func (s *Service) Descramble(tsb []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, failed := 0, 0
	for _, d := range s.descramblers {
		count++
		if d.state == StateForbidden {
			failed++
			continue
		}
		if d.state != StateResolved {
			continue
		}
		return OutcomeResolved, d.ctx.Descramble(tsb)
	}
	if count > 0 && count == failed {
		return OutcomeForbidden, nil
	}
	return OutcomePending, nil
}

// Descramblers lists the attached descramblers in attach order.
func (s *Service) Descramblers() []DescramblerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.descramblers, func(d *descramblerEntry, _ int) DescramblerInfo {
		return DescramblerInfo{Name: d.name, State: d.state, Kind: d.ctx.Kind()}
	})
}

// Pending counts packets queued in all descrambler clusters.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Reduce(s.descramblers, func(n int, d *descramblerEntry, _ int) int { return n + d.ctx.Pending() }, 0)
}

// Drain flushes every descrambler cluster.
func (s *Service) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.descramblers {
		d.ctx.Drain()
	}
}

func (s *Service) entry(name string) *descramblerEntry {
	if d, ok := lo.Find(s.descramblers, func(d *descramblerEntry) bool { return d.name == name }); ok {
		return d
	}
	d := &descramblerEntry{name: name, state: StateInit, ctx: NewContext(s.opts)}
	s.descramblers = append(s.descramblers, d)
	return d
}

func (s *Service) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SomeBy(s.descramblers, func(d *descramblerEntry) bool { return d.name == name })
}

func (s *Service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.descramblers {
		d.ctx.Close()
	}
	s.descramblers = nil
}

// Registry tracks running services and routes control words and packets to
// them.
type Registry struct {
	opts    Options
	clients []Client
	log     *logrus.Entry

	mu       deadlock.RWMutex
	services map[uint16]*Service
}

// NewRegistry creates a registry. opts is the template for every context;
// its Service field is replaced by the service id.
func NewRegistry(opts Options, clients ...Client) *Registry {
	opts.setDefaults()
	return &Registry{
		opts:     opts,
		clients:  clients,
		log:      opts.Logger.WithField("subsystem", "registry"),
		services: make(map[uint16]*Service),
	}
}

// Start registers a service and offers it to every client. Starting a
// running service returns the existing one.
func (r *Registry) Start(info ServiceInfo) *Service {
	r.mu.Lock()
	svc, ok := r.services[info.SID]
	if !ok {
		opts := r.opts
		opts.Service = info.SID
		svc = &Service{info: info, opts: opts}
		r.services[info.SID] = svc
	}
	r.mu.Unlock()
	if ok {
		return svc
	}
	r.log.WithField("service", info.SID).Debugf("service started, caids %v",
		lo.Map(info.CAIDs, func(c CAID, _ int) string { return CAIDName(c.ID) }))
	for _, c := range r.clients {
		c.Start(r, svc)
	}
	return svc
}

// Stop closes every descrambler of the service and forgets it. Queued
// packets are dropped.
func (r *Registry) Stop(sid uint16) {
	r.mu.Lock()
	svc, ok := r.services[sid]
	delete(r.services, sid)
	r.mu.Unlock()
	if ok {
		svc.stop()
	}
}

// Service looks up a running service.
func (r *Registry) Service(sid uint16) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[sid]
	return svc, ok
}

// Services returns the ids of the running services in ascending order.
func (r *Registry) Services() []uint16 {
	r.mu.RLock()
	ids := lo.Keys(r.services)
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Keys installs control words from the descrambler called name on service
// sid, creating it if needed. Empty even or odd keys leave that parity as it
// is. A kind the context refuses marks the descrambler fatal.
func (r *Registry) Keys(sid uint16, name string, k Kind, even, odd []byte) error {
	svc, ok := r.Service(sid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownService, sid)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	d := svc.entry(name)
	log := r.log.WithFields(logrus.Fields{"service": sid, "descrambler": name})
	if err := d.ctx.SetKind(k); err != nil {
		d.state = StateFatal
		log.WithError(err).Error("cannot set cipher kind")
		return err
	}
	if len(even) > 0 {
		if err := d.ctx.SetEvenKey(even); err != nil {
			return err
		}
	}
	if len(odd) > 0 {
		if err := d.ctx.SetOddKey(odd); err != nil {
			return err
		}
	}
	if d.state != StateResolved {
		log.Infof("%s keys resolved", k)
	}
	d.state = StateResolved
	return nil
}

// SetKeyState moves the descrambler called name to st, creating it if
// needed.
func (r *Registry) SetKeyState(sid uint16, name string, st KeyState) error {
	svc, ok := r.Service(sid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownService, sid)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.entry(name).state = st
	return nil
}

// Descramble routes tsb to service sid.
func (r *Registry) Descramble(sid uint16, tsb []byte) (Outcome, error) {
	svc, ok := r.Service(sid)
	if !ok {
		return OutcomePending, fmt.Errorf("%w: %d", ErrUnknownService, sid)
	}
	return svc.Descramble(tsb)
}

// DrainAll flushes the clusters of every running service.
func (r *Registry) DrainAll() {
	r.mu.RLock()
	svcs := lo.Values(r.services)
	r.mu.RUnlock()
	for _, svc := range svcs {
		svc.Drain()
	}
}
