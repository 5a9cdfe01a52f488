package avpipe

import "sync"

// PadType distinguishes the two sides of a link.
type PadType int

const (
	PadInput PadType = iota
	PadOutput
)

func (t PadType) String() string {
	if t == PadInput {
		return "Input"
	}
	return "Output"
}

// PadCallback receives resources arriving on an input pad.
type PadCallback func(Resource) error

// PadEventCallback receives events arriving on a pad.
type PadEventCallback func(Event) error

// A Pad is a typed port owned by exactly one element. An output pad links
// to at most one input pad and vice versa; data always flows output to
// input, events flow in either direction along the link. The link
// structure must only be modified while both owning elements are in the
// Null state.
type Pad struct {
	owner Element
	typ   PadType
	name  string

	mu    sync.RWMutex
	peer  *Pad
	props map[string]Property

	callback      PadCallback
	eventCallback PadEventCallback
}

func newPad(owner Element, typ PadType, name string) *Pad {
	return &Pad{
		owner: owner,
		typ:   typ,
		name:  name,
		props: make(map[string]Property),
	}
}

// Type returns the side of the pad.
func (p *Pad) Type() PadType { return p.typ }

// Name returns the pad name, unique within its side of the element.
func (p *Pad) Name() string { return p.name }

// SetName renames the pad.
func (p *Pad) SetName(name string) { p.name = name }

// Element returns the owning element.
func (p *Pad) Element() Element { return p.owner }

// Peer returns the pad on the other side of the link, nil when unlinked.
func (p *Pad) Peer() *Pad {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peer
}

// PeerElement returns the element owning the peer pad, nil when unlinked.
func (p *Pad) PeerElement() Element {
	if peer := p.Peer(); peer != nil {
		return peer.owner
	}
	return nil
}

// IsLinked reports whether the pad has a peer.
func (p *Pad) IsLinked() bool { return p.Peer() != nil }

// Link connects an output pad to an input pad, setting peer pointers on
// both sides. Any call that is not output-to-input fails with
// InvalidArguments. Existing links on either side are replaced.
func (p *Pad) Link(target *Pad) error {
	if target == nil || p.typ != PadOutput || target.typ != PadInput {
		return ErrInvalidArguments
	}
	p.mu.Lock()
	if p.peer != nil {
		p.peer.setPeer(nil)
	}
	p.peer = target
	p.mu.Unlock()
	if old := target.Peer(); old != nil && old != p {
		old.setPeer(nil)
	}
	target.setPeer(p)
	return nil
}

// Unlink clears the peer on both sides; unlinking an unlinked pad is a
// no-op.
func (p *Pad) Unlink() error {
	p.mu.Lock()
	peer := p.peer
	p.peer = nil
	p.mu.Unlock()
	if peer != nil {
		peer.setPeer(nil)
	}
	return nil
}

func (p *Pad) setPeer(peer *Pad) {
	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
}

// Push delivers a resource to the linked input pad's callback,
// synchronously, and returns its result. Only output pads push; an
// unlinked pad reports NoLink, a peer without a callback InvalidState.
func (p *Pad) Push(res Resource) error {
	if p.typ != PadOutput {
		return ErrInvalidArguments
	}
	peer := p.Peer()
	if peer == nil {
		return ErrNoLink
	}
	if peer.callback == nil {
		return ErrInvalidState
	}
	return peer.callback(res)
}

// PushEvent delivers an event to the peer pad's event callback. A peer
// without an event callback swallows the event; an unlinked pad reports
// NoLink.
func (p *Pad) PushEvent(ev Event) error {
	peer := p.Peer()
	if peer == nil {
		return ErrNoLink
	}
	if peer.eventCallback == nil {
		return nil
	}
	return peer.eventCallback(ev)
}

// SetCallback installs the data handler of an input pad; each pad holds at
// most one. Installing on an output pad is rejected.
func (p *Pad) SetCallback(cb PadCallback) error {
	if p.typ != PadInput {
		return ErrInvalidArguments
	}
	p.callback = cb
	return nil
}

// SetEventCallback installs the event handler of the pad.
func (p *Pad) SetEventCallback(cb PadEventCallback) {
	p.eventCallback = cb
}

// --- property map ---

// Property returns the value stored under name, a null property when
// absent.
func (p *Pad) Property(name string) Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props[name]
}

// HasProperty reports whether the pad carries the named property.
func (p *Pad) HasProperty(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.props[name]
	return ok
}

// AddProperty stores a property under name, replacing any previous value.
func (p *Pad) AddProperty(name string, prop Property) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props[name] = prop
}

// RemoveProperty deletes the named property, reporting whether it existed.
func (p *Pad) RemoveProperty(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.props[name]
	delete(p.props, name)
	return ok
}

// ClearProperties empties the property map.
func (p *Pad) ClearProperties() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props = make(map[string]Property)
}

// Properties returns a shallow snapshot of the property map.
func (p *Pad) Properties() map[string]Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Property, len(p.props))
	for k, v := range p.props {
		out[k] = v
	}
	return out
}
