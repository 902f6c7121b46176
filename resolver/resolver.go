package resolver

import (
	"errors"
	"fmt"

	"github.com/tsawler/pdfcore/core"
)

// ErrMaxDepth is returned when a deep resolution nests deeper than the
// configured limit.
var ErrMaxDepth = errors.New("maximum resolution depth exceeded")

// ObjectReader is the part of a document reader the resolver needs.
type ObjectReader interface {
	GetObject(objNum int) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// ObjectResolver expands indirect references inside object trees.
//
// A reference that points back to an object already being expanded on the
// current path is left in place as a reference, so the result of a deep
// resolution is always a finite tree. Resolvers are not safe for concurrent
// use.
type ObjectResolver struct {
	reader   ObjectReader
	visited  map[int]bool // object numbers on the current path
	maxDepth int
	depth    int
}

// Option configures the resolver
type Option func(*ObjectResolver)

// WithMaxDepth sets the maximum nesting depth (default: 100)
func WithMaxDepth(depth int) Option {
	return func(r *ObjectResolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// NewResolver creates a new object resolver
func NewResolver(reader ObjectReader, opts ...Option) *ObjectResolver {
	r := &ObjectResolver{
		reader:   reader,
		visited:  make(map[int]bool),
		maxDepth: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows obj if it is a reference, including chains of references.
// Containers are returned as they are.
func (r *ObjectResolver) Resolve(obj core.Object) (core.Object, error) {
	defer r.Reset()
	return r.resolve(obj, false)
}

// ResolveDeep returns a copy of obj with every reachable reference replaced
// by its target. Stream data is shared with the input.
func (r *ObjectResolver) ResolveDeep(obj core.Object) (core.Object, error) {
	defer r.Reset()
	return r.resolve(obj, true)
}

func (r *ObjectResolver) resolve(obj core.Object, deep bool) (core.Object, error) {
	if r.depth >= r.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, r.maxDepth)
	}
	r.depth++
	defer func() { r.depth-- }()

	switch v := obj.(type) {
	case core.IndirectRef:
		if r.visited[v.Number] {
			return v, nil
		}
		r.visited[v.Number] = true
		defer delete(r.visited, v.Number)

		target, err := r.reader.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference %s: %w", v, err)
		}
		if _, ok := target.(core.IndirectRef); !ok && !deep {
			return target, nil
		}
		return r.resolve(target, deep)

	case *core.Dict:
		if !deep || v == nil {
			return v, nil
		}
		return r.resolveDict(v)

	case core.Array:
		if !deep {
			return v, nil
		}
		out := make(core.Array, len(v))
		for i, elem := range v {
			res, err := r.resolve(elem, true)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve array element %d: %w", i, err)
			}
			out[i] = res
		}
		return out, nil

	case *core.Stream:
		if !deep {
			return v, nil
		}
		dict, err := r.resolveDict(v.Dict)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve stream dict: %w", err)
		}
		return &core.Stream{Dict: dict, Data: v.Data}, nil
	}
	return obj, nil
}

func (r *ObjectResolver) resolveDict(d *core.Dict) (*core.Dict, error) {
	out := core.NewDict()
	for _, key := range d.Keys() {
		res, err := r.resolve(d.Get(key), true)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dict key %s: %w", key, err)
		}
		out.Set(key, res)
	}
	return out, nil
}

// Reset clears the path state. Resolve and ResolveDeep call it themselves;
// it is only needed after a panic inside a reader.
func (r *ObjectResolver) Reset() {
	clear(r.visited)
	r.depth = 0
}

// ResolveDict deep-resolves a dictionary.
func (r *ObjectResolver) ResolveDict(dict *core.Dict) (*core.Dict, error) {
	resolved, err := r.ResolveDeep(dict)
	if err != nil {
		return nil, err
	}
	return resolved.(*core.Dict), nil
}

// ResolveArray deep-resolves an array.
func (r *ObjectResolver) ResolveArray(arr core.Array) (core.Array, error) {
	resolved, err := r.ResolveDeep(arr)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Array), nil
}

// GetObjectResolved loads object objNum and follows it if it is itself a
// reference.
func (r *ObjectResolver) GetObjectResolved(objNum int) (core.Object, error) {
	obj, err := r.reader.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	return r.Resolve(obj)
}

// GetObjectResolvedDeep loads object objNum and deep-resolves it.
func (r *ObjectResolver) GetObjectResolvedDeep(objNum int) (core.Object, error) {
	obj, err := r.reader.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	defer r.Reset()
	r.visited[objNum] = true
	return r.resolve(obj, true)
}
