package avpipe

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// A Container is an element holding sub-elements. Adding a child hands
// the container shared ownership and inherits the container's bus and
// context into it; detaching returns ownership to the caller. State
// changes fan out to the children in data-flow order (reverse order for
// downward transitions).
type Container interface {
	Element

	// AddElement adopts a child; the child must be in the Null state.
	AddElement(Element) error
	// DetachElement releases a child, clearing its bus and context.
	DetachElement(Element) error
	// ForElements iterates the children, stopping when fn returns false.
	ForElements(fn func(Element) bool) error
	// Size reports the number of direct children.
	Size() int
}

type containerImpl struct {
	DefaultDelegate
	*Base

	cmu      sync.Mutex
	elements []Element
}

// NewContainer creates an empty container element.
func NewContainer() Container {
	c := &containerImpl{}
	c.Base = NewBase(c, "container")
	return c
}

// newContainerFor builds the container core for a type embedding it (the
// pipeline), routing the delegate hooks to the outer value.
func newContainerFor(self Delegate, kind string) *containerImpl {
	c := &containerImpl{}
	c.Base = NewBase(self, kind)
	return c
}

func (c *containerImpl) AddElement(e Element) error {
	if e == nil {
		return ErrInvalidArguments
	}
	if e.State() != StateNull {
		return ErrInvalidState
	}
	if err := e.SetBus(c.Bus()); err != nil {
		return err
	}
	if err := e.SetContext(c.Context()); err != nil {
		return err
	}
	c.cmu.Lock()
	c.elements = append(c.elements, e)
	c.cmu.Unlock()
	return nil
}

func (c *containerImpl) DetachElement(e Element) error {
	if e == nil {
		return ErrInvalidArguments
	}
	c.cmu.Lock()
	found := false
	for i, child := range c.elements {
		if child == e {
			c.elements = append(c.elements[:i], c.elements[i+1:]...)
			found = true
			break
		}
	}
	c.cmu.Unlock()
	if !found {
		return ErrInvalidArguments
	}
	e.SetBus(nil)
	e.SetContext(nil)
	return nil
}

func (c *containerImpl) ForElements(fn func(Element) bool) error {
	if fn == nil {
		return ErrInvalidArguments
	}
	c.cmu.Lock()
	children := append([]Element(nil), c.elements...)
	c.cmu.Unlock()
	for _, e := range children {
		if !fn(e) {
			break
		}
	}
	return nil
}

func (c *containerImpl) Size() int {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return len(c.elements)
}

// SetBus propagates the new bus into every child.
func (c *containerImpl) SetBus(bus EventSink) error {
	if err := c.Base.SetBus(bus); err != nil {
		return err
	}
	var errs error
	c.ForElements(func(e Element) bool {
		errs = multierr.Append(errs, e.SetBus(bus))
		return true
	})
	return errs
}

// SetContext propagates the new context into every child.
func (c *containerImpl) SetContext(ctx *Context) error {
	if err := c.Base.SetContext(ctx); err != nil {
		return err
	}
	var errs error
	c.ForElements(func(e Element) bool {
		errs = multierr.Append(errs, e.SetContext(ctx))
		return true
	})
	return errs
}

// SendEvent forwards the event to every child.
func (c *containerImpl) SendEvent(ev Event) error {
	if ev == nil {
		return ErrInvalidArguments
	}
	var firstErr error
	c.ForElements(func(e Element) bool {
		if err := e.SendEvent(ev); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// SetState walks the container itself through the transition path; each
// transition is applied to the children via the state handlers below.
func (c *containerImpl) SetState(target State) error {
	return c.Base.SetState(target)
}

func (c *containerImpl) OnInitialize() error { return c.fanOut(ChangeInitialize) }
func (c *containerImpl) OnPrepare() error    { return c.fanOut(ChangePrepare) }
func (c *containerImpl) OnRun() error        { return c.fanOut(ChangeRun) }
func (c *containerImpl) OnPause() error      { return c.fanOut(ChangePause) }
func (c *containerImpl) OnStop() error       { return c.fanOut(ChangeStop) }
func (c *containerImpl) OnTeardown() error   { return c.fanOut(ChangeTeardown) }

// fanOut applies one adjacent transition to all children in topological
// order, reversed for downward transitions so no element enters a state
// before its upstream (or leaves before its downstream, on the way down).
// The first failing child aborts, leaving the container partially
// changed; the caller decides whether to tear down.
func (c *containerImpl) fanOut(change StateChange) error {
	ordered := TopologySort(c)
	if ordered == nil {
		// A cyclic graph still has to be releasable.
		c.cmu.Lock()
		ordered = append([]Element(nil), c.elements...)
		c.cmu.Unlock()
	}
	downward := TargetState(change) < PreviousState(change)
	if downward {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	target := TargetState(change)
	for _, e := range ordered {
		if err := e.SetState(target); err != nil {
			return err
		}
	}
	return nil
}

// TopologySort returns the container's children in data-flow order using
// Kahn's algorithm over the output-to-input pad links. An empty result
// (nil) signals a cycle. Links leaving the container are ignored.
func TopologySort(c Container) []Element {
	inDegree := make(map[Element]int)
	c.ForElements(func(e Element) bool {
		inDegree[e] = 0
		return true
	})
	for e := range inDegree {
		for _, pad := range e.Outputs() {
			next := pad.PeerElement()
			if next == nil {
				continue
			}
			if _, inside := inDegree[next]; inside {
				inDegree[next]++
			}
		}
	}

	var ordered []Element
	c.ForElements(func(e Element) bool {
		if inDegree[e] == 0 {
			ordered = append(ordered, e)
		}
		return true
	})
	for index := 0; index < len(ordered); index++ {
		for _, pad := range ordered[index].Outputs() {
			next := pad.PeerElement()
			if next == nil {
				continue
			}
			if _, inside := inDegree[next]; !inside {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				ordered = append(ordered, next)
			}
		}
	}
	if len(ordered) != len(inDegree) {
		return nil
	}
	return ordered
}

// HasCycle reports whether the container, or any nested container, holds
// a link cycle.
func HasCycle(c Container) bool {
	ordered := TopologySort(c)
	if len(ordered) != c.Size() {
		return true
	}
	for _, e := range ordered {
		if nested, ok := e.(Container); ok && HasCycle(nested) {
			return true
		}
	}
	return false
}

// DumpTopology renders the container graph in Mermaid syntax: sources
// (no inputs) as ((name)), sinks (no outputs) as {name}, everything else
// as [name], with edges labeled by the pad names on both ends.
func DumpTopology(c Container) string {
	if c == nil {
		return ""
	}
	ordered := TopologySort(c)
	if ordered == nil {
		return ""
	}

	ids := make(map[Element]string)
	nextID := 0
	idOf := func(e Element) string {
		if id, ok := ids[e]; ok {
			return id
		}
		nextID++
		id := fmt.Sprintf("%d", nextID)
		ids[e] = id
		return id
	}
	mark := func(e Element) string {
		switch {
		case len(e.Inputs()) == 0:
			return "((" + e.Name() + "))"
		case len(e.Outputs()) == 0:
			return "{" + e.Name() + "}"
		default:
			return "[" + e.Name() + "]"
		}
	}

	var sb strings.Builder
	sb.WriteString("graph LR\n")
	for _, e := range ordered {
		for _, out := range e.Outputs() {
			peer := out.Peer()
			if peer == nil {
				continue
			}
			next := peer.Element()
			fmt.Fprintf(&sb, "    %s%s -- %s to %s --> %s%s\n",
				idOf(e), mark(e), out.Name(), peer.Name(), idOf(next), mark(next))
		}
	}
	return sb.String()
}

var _ Container = (*containerImpl)(nil)
