package avpipe

import "sync"

// An ElementCreator builds a fresh element instance.
type ElementCreator func() Element

// The element factory is a process-wide registry mapping kind names to
// constructors. Concrete element packages register themselves at load
// time from their init functions.
type factory struct {
	mu       sync.RWMutex
	creators map[string]ElementCreator
}

var defaultFactory = &factory{creators: make(map[string]ElementCreator)}

// RegisterElement installs a constructor under a kind name. Empty names
// and nil creators are ignored; the first registration of a name wins.
func RegisterElement(name string, creator ElementCreator) {
	if name == "" || creator == nil {
		return
	}
	defaultFactory.mu.Lock()
	defer defaultFactory.mu.Unlock()
	if _, exists := defaultFactory.creators[name]; exists {
		return
	}
	defaultFactory.creators[name] = creator
}

// CreateElement builds a new element of the named kind, or nil with
// InvalidArguments when the kind is unknown.
func CreateElement(name string) (Element, error) {
	defaultFactory.mu.RLock()
	creator, ok := defaultFactory.creators[name]
	defaultFactory.mu.RUnlock()
	if !ok {
		return nil, NewErrorf(CodeInvalidArguments, "unknown element kind %q", name)
	}
	return creator(), nil
}

// RegisteredElements lists the known kind names (unordered).
func RegisteredElements() []string {
	defaultFactory.mu.RLock()
	defer defaultFactory.mu.RUnlock()
	names := make([]string, 0, len(defaultFactory.creators))
	for name := range defaultFactory.creators {
		names = append(names, name)
	}
	return names
}

func init() {
	RegisterElement("container", func() Element { return NewContainer() })
	RegisterElement("pipeline", func() Element { return NewPipeline() })
}

// CreateElementAs builds the named element and asserts it to the
// requested interface in one step.
func CreateElementAs[T Element](name string) (T, error) {
	var zero T
	e, err := CreateElement(name)
	if err != nil {
		return zero, err
	}
	typed, ok := e.(T)
	if !ok {
		return zero, NewErrorf(CodeInvalidArguments, "element %q has the wrong type", name)
	}
	return typed, nil
}
