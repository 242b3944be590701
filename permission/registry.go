package permission

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
	// ErrUnknownPermission is returned when a name is not in the registry.
	ErrUnknownPermission = errors.New("permission not registered")
)

// Registry maps permission names to bit positions within a bitmask.
// Supports widths of 64, 128, 256, or 512 bits.
type Registry struct {
	maxBits int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a permission [Registry]. maxBits selects the mask
// width (64/128/256/512).
func NewRegistry(maxBits int) (*Registry, error) {
	if maxBits != 64 && maxBits != 128 && maxBits != 256 && maxBits != 512 {
		return nil, errors.New("invalid maxBits")
	}

	return &Registry{
		maxBits:   maxBits,
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}, nil
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}

	if err := validateName(name); err != nil {
		return -1, err
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= r.maxBits {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// RegisterModule registers "module.sub" for every sub-permission.
func (r *Registry) RegisterModule(module string, subs ...string) error {
	if len(subs) == 0 {
		return errors.New("module requires at least one sub-permission")
	}
	for _, sub := range subs {
		if _, err := r.Register(module + "." + sub); err != nil {
			return err
		}
	}
	return nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names returns every registered name in bit order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.bitToName))
	for bit, name := range r.bitToName {
		out[bit] = name
	}
	return out
}

// Modules returns the distinct module prefixes of dotted names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for name := range r.nameToBit {
		if i := strings.IndexByte(name, '.'); i > 0 {
			seen[name[:i]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Freeze prevents further registrations. Must be called before the
// registry is used for evaluation.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// Width returns the mask width selected at construction.
func (r *Registry) Width() int {
	return r.maxBits
}

// NewMask returns an empty mask sized for this registry.
func (r *Registry) NewMask() Mask {
	m, _ := NewMask(r.maxBits)
	return m
}

// Has reports whether name is registered and set in mask. Unknown names and nil
// masks are always false.
func (r *Registry) Has(mask Mask, name string) bool {
	if mask == nil {
		return false
	}
	bit, ok := r.Bit(name)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

func validateName(name string) error {
	if name == "" {
		return errors.New("permission name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return errors.New("permission name has surrounding whitespace")
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return errors.New("permission name has empty segment")
		}
	}
	return nil
}
