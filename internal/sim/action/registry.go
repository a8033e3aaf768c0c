package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"parkcraft.ai/internal/sim/encoding"
)

var (
	ErrUnknownKind = errors.New("unknown action kind")
	ErrDecode      = errors.New("action decode failed")
	ErrEncode      = errors.New("action encode failed")
)

// Factory returns a zero-valued action ready to be decoded into.
type Factory func() Action

// Registry maps every supported kind to its factory. It is built once from a
// static table and never modified afterwards.
type Registry struct {
	factories map[Kind]Factory
}

func NewRegistry(factories map[Kind]Factory) (*Registry, error) {
	if err := validateFactories(factories); err != nil {
		return nil, err
	}
	cp := make(map[Kind]Factory, len(factories))
	for k, f := range factories {
		cp[k] = f
	}
	return &Registry{factories: cp}, nil
}

func validateFactories(factories map[Kind]Factory) error {
	supported := SupportedKinds()
	allowed := make(map[Kind]struct{}, len(supported))
	var missing []string
	for _, k := range supported {
		allowed[k] = struct{}{}
		f, ok := factories[k]
		if !ok || f == nil {
			missing = append(missing, k.String())
			continue
		}
		if got := f().Kind(); got != k {
			return fmt.Errorf("action registry: factory for %s builds %s", k, got)
		}
	}
	var extra []string
	for k := range factories {
		if _, ok := allowed[k]; !ok {
			extra = append(extra, k.String())
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("action registry mismatch: missing=[%s] extra=[%s]", strings.Join(missing, ","), strings.Join(extra, ","))
	}
	return nil
}

func (r *Registry) New(k Kind) (Action, error) {
	f, ok := r.factories[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(k))
	}
	return f(), nil
}

// Encode serializes header and parameters. It fails for parameters the wire
// format cannot carry, so whatever it returns decodes back to a.
func Encode(a Action) ([]byte, error) {
	s := encoding.NewWriter()
	a.Serialize(s)
	if err := s.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, a.Kind(), err)
	}
	return s.Bytes(), nil
}

// Decode builds an action of kind k from b. Every byte must be consumed.
func (r *Registry) Decode(k Kind, b []byte) (Action, error) {
	a, err := r.New(k)
	if err != nil {
		return nil, err
	}
	s := encoding.NewReader(b)
	a.Serialize(s)
	if err := s.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, k, err)
	}
	return a, nil
}

// Clone copies an action by round-tripping it through the wire encoding, so
// a clone never shares state with its source.
func (r *Registry) Clone(a Action) (Action, error) {
	b, err := Encode(a)
	if err != nil {
		return nil, err
	}
	return r.Decode(a.Kind(), b)
}

// Describe renders kind and parameters for log lines.
func Describe(a Action) string {
	var f encoding.Formatter
	a.AcceptParameters(&f)
	return a.Kind().String() + "(" + f.String() + ")"
}
