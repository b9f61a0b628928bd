package vtab

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Host is the embedding query engine, as seen from the adapter. Everything
// else about the host stays opaque: it drives the protocol by calling Conn
// methods.
type Host interface {
	// Version returns the host's numeric runtime version.
	Version() int

	// DeclareSchema registers an instance's schema DDL during
	// connect/create. A failure aborts the connect.
	DeclareSchema(ddl string) error
}

// Options configures a Conn.
type Options struct {
	// Logf, when set, receives a trace of protocol calls.
	Logf func(format string, args ...any)
}

// Conn is one connection's view of the adapter: the module registry plus
// every live instance and cursor handle. All operations are synchronous and
// single-threaded; see the package documentation for the sharing rules.
type Conn struct {
	host Host
	caps Caps
	logf func(format string, args ...any)

	regs      map[string]*Registration
	instances handleArena[*instance]
	cursors   handleArena[*cursorState]
}

// NewConn binds an adapter to a host. The host's capability set is resolved
// here, once, and never re-queried.
func NewConn(host Host, opt Options) *Conn {
	return &Conn{
		host: host,
		caps: newCaps(host.Version()),
		logf: opt.Logf,
		regs: make(map[string]*Registration),
	}
}

// Caps returns the negotiated capability set.
func (c *Conn) Caps() Caps { return c.caps }

func (c *Conn) tracef(format string, args ...any) {
	if c.logf != nil {
		c.logf(format, args...)
	}
}

// Registration binds a module name to its descriptor and auxiliary data for
// the lifetime of the registration.
type Registration struct {
	conn    *Conn
	name    string
	mod     *Module
	aux     any
	release func(aux any)
	live    int // connected/created instances
	closed  bool
}

// Register binds name to a module descriptor on this connection. aux is
// passed unchanged to every lifecycle call of this registration; release,
// if non-nil, runs exactly once when the registration is closed.
//
// Registering an eponymous-only module on a host that cannot refuse
// explicit creation fails closed rather than risking undefined behavior.
func (c *Conn) Register(name string, mod *Module, aux any, release func(aux any)) (*Registration, error) {
	if _, exists := c.regs[name]; exists {
		return nil, protocolf("register", "module %q already registered", name)
	}
	if mod.kind == KindEponymousOnly && !c.caps.EponymousOnly() {
		return nil, fmt.Errorf("vtab: register %q: eponymous-only modules: %w", name, ErrUnsupported)
	}
	reg := &Registration{conn: c, name: name, mod: mod, aux: aux, release: release}
	c.regs[name] = reg
	c.tracef("register(%q, %v)", name, mod.kind)
	return reg, nil
}

// Close unregisters the module and releases its auxiliary data. The release
// hook runs exactly once even if Close is called twice. Closing a
// registration that still has connected instances is an error and releases
// nothing.
func (r *Registration) Close() error {
	if r.closed {
		return nil
	}
	if r.live > 0 {
		return protocolf("unregister", "module %q has %d connected instances", r.name, r.live)
	}
	r.closed = true
	delete(r.conn.regs, r.name)
	if r.release != nil {
		r.release(r.aux)
		r.release = nil
	}
	r.conn.tracef("unregister(%q)", r.name)
	return nil
}

// Close tears down the connection: every live instance is disconnected
// (report-and-proceed) and every registration is closed. Errors are
// collected, not short-circuited.
func (c *Conn) Close() error {
	var errs *multierror.Error
	c.instances.each(func(h uint64, inst *instance) {
		if err := c.Disconnect(InstanceHandle(h)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("disconnect %q: %w", inst.reg.name, err))
		}
	})
	for _, reg := range c.regs {
		if err := reg.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
