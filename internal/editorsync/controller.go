package editorsync

import (
	"log/slog"
	"time"

	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/pubsub"
	"github.com/fakeyudi/inkwell/internal/session"
)

// DefaultSettleDelay is how long a guard stays raised after a push when the
// surface cannot acknowledge. The value is empirical; surfaces that settle
// more slowly need a larger delay.
const DefaultSettleDelay = 300 * time.Millisecond

// Synced is published after a surface edit or a push reached the session.
type Synced struct {
	ID    session.ID
	Dirty bool
	Words int
	Chars int
}

// Discarded is published for every surface notification dropped by a guard.
type Discarded struct {
	Reason string
}

// Options configures a Controller.
type Options struct {
	// SettleDelay bounds how long guards stay raised after a push. Zero
	// means DefaultSettleDelay.
	SettleDelay time.Duration
	// SettleTimeout is the fallback used with a Settler surface that never
	// acknowledges. Zero means ten times the settle delay.
	SettleTimeout time.Duration
	Logger        *slog.Logger
}

// guard is a time-bounded critical-section marker. Each raise bumps the
// generation so that a settle belonging to an older push cannot lower a
// guard raised by a newer one.
type guard struct {
	name   string
	raised bool
	gen    uint64
	timer  eventloop.Timer
}

func (g *guard) raise() uint64 {
	g.gen++
	g.raised = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return g.gen
}

func (g *guard) lower(gen uint64) bool {
	if gen != g.gen {
		return false
	}
	g.raised = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return true
}

// Controller is the single translation point between a Surface and the
// registry's active session.
type Controller struct {
	reg     *session.Registry
	ex      eventloop.Executor
	surface Surface
	log     *slog.Logger

	settleDelay   time.Duration
	settleTimeout time.Duration

	external  guard
	tabSwitch guard
	// switching is the caller-held tab switch flag from SetTabSwitching.
	switching bool

	// Synced and Discarded replace the string-named events the surface
	// decorations used to exchange with their host.
	Synced    pubsub.Topic[Synced]
	Discarded pubsub.Topic[Discarded]
}

// NewController returns a Controller with no surface bound.
func NewController(reg *session.Registry, ex eventloop.Executor, opts Options) *Controller {
	delay := opts.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	timeout := opts.SettleTimeout
	if timeout <= 0 {
		timeout = 10 * delay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		reg:           reg,
		ex:            ex,
		log:           logger.With("component", "editorsync"),
		settleDelay:   delay,
		settleTimeout: timeout,
		external:      guard{name: "external-update"},
		tabSwitch:     guard{name: "tab-switch"},
	}
}

// BindSurface attaches s, replacing any surface bound before, and
// initializes it with the active session's content as an external update.
func (c *Controller) BindSurface(s Surface) {
	if c.surface != nil {
		c.UnbindSurface()
	}
	c.surface = s
	s.OnContentChanged(c.OnSurfaceChanged)

	content := ""
	if active := c.reg.Active(); active != nil {
		content = active.Content()
	}
	gen := c.external.raise()
	if err := s.Initialize(content); err != nil {
		c.log.Warn("surface initialization failed", "err", err)
		c.external.lower(gen)
		return
	}
	c.armDelay(&c.external, gen, c.settleDelay)
}

// UnbindSurface destroys the bound surface and lowers every guard.
func (c *Controller) UnbindSurface() {
	if c.surface == nil {
		return
	}
	c.external.lower(c.external.gen)
	c.tabSwitch.lower(c.tabSwitch.gen)
	c.surface.Destroy()
	c.surface = nil
}

// Bound reports whether a surface is attached.
func (c *Controller) Bound() bool {
	return c.surface != nil
}

// ExternalUpdateInFlight reports whether surface notifications are currently
// being discarded because of a push.
func (c *Controller) ExternalUpdateInFlight() bool {
	return c.external.raised
}

// TabSwitchInFlight reports whether a tab switch guard is raised.
func (c *Controller) TabSwitchInFlight() bool {
	return c.tabSwitch.raised || c.switching
}

// SetTabSwitching raises or lowers the caller-held tab switch guard.
func (c *Controller) SetTabSwitching(switching bool) {
	c.switching = switching
}

// PushContent replaces the surface's content. As an external update the
// active session takes the content with load semantics and never becomes
// dirty; otherwise the content is applied as a normal edit first.
func (c *Controller) PushContent(content string, opts PushOptions) {
	if c.surface == nil {
		c.log.Debug("push ignored: no surface bound", "external", opts.AsExternalUpdate)
		return
	}

	gen := c.external.raise()
	if active := c.reg.Active(); active != nil {
		switch {
		case opts.AsExternalUpdate && active.Content() != content:
			c.reg.ReplaceContent(active.ID(), content)
		case !opts.AsExternalUpdate:
			c.reg.MutateContent(active.ID(), content)
		}
		c.publishSynced(active)
	}
	c.replace(content, &c.external, gen)
}

// SwitchTo activates id and shows its content without dirtying it.
func (c *Controller) SwitchTo(id session.ID) bool {
	s := c.reg.Get(id)
	if s == nil {
		return false
	}
	gen := c.tabSwitch.raise()
	c.reg.Activate(id)
	if c.surface == nil {
		c.log.Debug("switch without surface", "id", id)
		c.tabSwitch.lower(gen)
		return true
	}
	c.replace(s.Content(), &c.tabSwitch, gen)
	return true
}

// OnSurfaceChanged is the surface's change callback.
func (c *Controller) OnSurfaceChanged(content string) {
	switch {
	case c.external.raised:
		c.discard(c.external.name)
		return
	case c.tabSwitch.raised || c.switching:
		c.discard(c.tabSwitch.name)
		return
	}

	active := c.reg.Active()
	if active == nil {
		c.discard("no-active-session")
		return
	}
	if active.Content() == content {
		return
	}
	c.reg.MutateContent(active.ID(), content)
	c.publishSynced(active)
}

func (c *Controller) discard(reason string) {
	c.log.Debug("surface notification discarded", "reason", reason)
	c.Discarded.Publish(Discarded{Reason: reason})
}

func (c *Controller) publishSynced(s *session.Session) {
	c.Synced.Publish(Synced{
		ID:    s.ID(),
		Dirty: s.Dirty(),
		Words: session.WordCount(s.Content()),
		Chars: session.CharCount(s.Content()),
	})
}

// replace pushes content into the surface and schedules the guard's release.
func (c *Controller) replace(content string, g *guard, gen uint64) {
	if settler, ok := c.surface.(Settler); ok {
		err := settler.ReplaceContentSettled(content, func() {
			c.ex.Post(func() { g.lower(gen) })
		})
		if err != nil {
			c.log.Warn("surface replace failed", "guard", g.name, "err", err)
			g.lower(gen)
			return
		}
		c.armDelay(g, gen, c.settleTimeout)
		return
	}

	if err := c.surface.ReplaceContent(content); err != nil {
		c.log.Warn("surface replace failed", "guard", g.name, "err", err)
		g.lower(gen)
		return
	}
	c.armDelay(g, gen, c.settleDelay)
}

func (c *Controller) armDelay(g *guard, gen uint64, d time.Duration) {
	g.timer = c.ex.AfterFunc(d, func() { g.lower(gen) })
}
