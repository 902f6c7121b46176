package resolver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/tsawler/pdfcore/core"
)

var objectOpts = cmp.Options{
	cmp.AllowUnexported(core.Dict{}),
	cmpopts.IgnoreUnexported(core.Stream{}),
	cmpopts.EquateEmpty(),
}

// mockReader is a mock ObjectReader for testing
type mockReader struct {
	objects map[int]core.Object
}

func newMockReader() *mockReader {
	return &mockReader{
		objects: make(map[int]core.Object),
	}
}

func (m *mockReader) AddObject(num int, obj core.Object) {
	m.objects[num] = obj
}

func (m *mockReader) GetObject(objNum int) (core.Object, error) {
	obj, ok := m.objects[objNum]
	if !ok {
		return nil, fmt.Errorf("object %d not found", objNum)
	}
	return obj, nil
}

func (m *mockReader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return m.GetObject(ref.Number)
}

func dict(kv ...interface{}) *core.Dict {
	d := core.NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(core.Object))
	}
	return d
}

func ref(n int) core.IndirectRef { return core.IndirectRef{Number: n} }

func TestResolveIndirectRef(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(5, core.Int(42))

	resolved, err := NewResolver(reader).Resolve(ref(5))
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if resolved != core.Int(42) {
		t.Errorf("Resolve() = %v, want 42", resolved)
	}
}

func TestResolveChain(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(1, ref(2))
	reader.AddObject(2, ref(3))
	reader.AddObject(3, core.Name("End"))

	resolved, err := NewResolver(reader).Resolve(ref(1))
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if resolved != core.Name("End") {
		t.Errorf("Resolve() = %v, want /End", resolved)
	}
}

func TestResolvePrimitive(t *testing.T) {
	resolver := NewResolver(newMockReader())

	tests := []struct {
		name string
		obj  core.Object
	}{
		{"Bool", core.Bool(true)},
		{"Int", core.Int(123)},
		{"Real", core.Real(3.14)},
		{"Name", core.Name("Test")},
		{"Null", core.Null{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolver.Resolve(tt.obj)
			if err != nil {
				t.Fatalf("failed to resolve: %v", err)
			}
			if resolved != tt.obj {
				t.Errorf("primitive changed: %v -> %v", tt.obj, resolved)
			}
		})
	}
}

func TestResolveContainers(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(10, core.NewString("Value"))
	reader.AddObject(20, core.Name("FlateDecode"))
	reader.AddObject(30, core.NewString("Nested Value"))
	reader.AddObject(31, dict("Value", ref(30)))
	reader.AddObject(40, core.Int(7))
	reader.AddObject(41, core.Array{ref(40)})

	tests := []struct {
		name        string
		in          core.Object
		wantShallow core.Object
		wantDeep    core.Object
	}{
		{
			name:        "dict",
			in:          dict("Direct", core.Int(123), "Ref", ref(10)),
			wantShallow: dict("Direct", core.Int(123), "Ref", ref(10)),
			wantDeep:    dict("Direct", core.Int(123), "Ref", core.NewString("Value")),
		},
		{
			name:        "array",
			in:          core.Array{core.Int(1), ref(10)},
			wantShallow: core.Array{core.Int(1), ref(10)},
			wantDeep:    core.Array{core.Int(1), core.NewString("Value")},
		},
		{
			name:        "nested dict",
			in:          dict("Nested", ref(31)),
			wantShallow: dict("Nested", ref(31)),
			wantDeep:    dict("Nested", dict("Value", core.NewString("Nested Value"))),
		},
		{
			name:        "nested array",
			in:          core.Array{ref(41)},
			wantShallow: core.Array{ref(41)},
			wantDeep:    core.Array{core.Array{core.Int(7)}},
		},
		{
			name:        "stream",
			in:          &core.Stream{Dict: dict("Filter", ref(20)), Data: []byte("data")},
			wantShallow: &core.Stream{Dict: dict("Filter", ref(20)), Data: []byte("data")},
			wantDeep:    &core.Stream{Dict: dict("Filter", core.Name("FlateDecode")), Data: []byte("data")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(reader)

			shallow, err := resolver.Resolve(tt.in)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantShallow, shallow, objectOpts); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}

			deep, err := resolver.ResolveDeep(tt.in)
			if err != nil {
				t.Fatalf("ResolveDeep() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantDeep, deep, objectOpts); diff != "" {
				t.Errorf("ResolveDeep() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveDeepLeavesInputAlone(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(1, core.Int(1))

	in := dict("A", ref(1))
	if _, err := NewResolver(reader).ResolveDeep(in); err != nil {
		t.Fatal(err)
	}
	if in.Get("A") != ref(1) {
		t.Errorf("input was modified: %v", in)
	}
}

func TestCycle(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(50, dict("Next", ref(51)))
	reader.AddObject(51, dict("Next", ref(50)))

	got, err := NewResolver(reader).ResolveDeep(ref(50))
	if err != nil {
		t.Fatalf("ResolveDeep() error = %v", err)
	}
	want := dict("Next", dict("Next", ref(50)))
	if diff := cmp.Diff(want, got, objectOpts); diff != "" {
		t.Errorf("ResolveDeep() mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedObjectOnSeparateBranches(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(1, core.Name("Shared"))

	got, err := NewResolver(reader).ResolveDeep(core.Array{ref(1), ref(1)})
	if err != nil {
		t.Fatalf("ResolveDeep() error = %v", err)
	}
	want := core.Array{core.Name("Shared"), core.Name("Shared")}
	if diff := cmp.Diff(want, got, objectOpts); diff != "" {
		t.Errorf("ResolveDeep() mismatch (-want +got):\n%s", diff)
	}
}

func TestMaxDepth(t *testing.T) {
	reader := newMockReader()
	for i := 60; i < 70; i++ {
		reader.AddObject(i, dict("Next", ref(i+1)))
	}
	reader.AddObject(70, core.NewString("End"))

	resolver := NewResolver(reader, WithMaxDepth(5))
	_, err := resolver.ResolveDeep(ref(60))
	if !errors.Is(err, ErrMaxDepth) {
		t.Fatalf("ResolveDeep() error = %v, want ErrMaxDepth", err)
	}

	// the resolver is usable again after a failure
	if _, err := resolver.ResolveDeep(ref(69)); err != nil {
		t.Errorf("ResolveDeep() after failure error = %v", err)
	}
}

func TestMissingObject(t *testing.T) {
	_, err := NewResolver(newMockReader()).ResolveDeep(dict("A", ref(99)))
	if err == nil {
		t.Fatal("ResolveDeep() error = nil")
	}
}

func TestConvenienceMethods(t *testing.T) {
	reader := newMockReader()
	reader.AddObject(80, core.NewString("Value"))
	reader.AddObject(81, dict("Ref", ref(80)))
	reader.AddObject(82, ref(80))
	resolver := NewResolver(reader)

	d, err := resolver.ResolveDict(dict("Key", ref(80)))
	if err != nil {
		t.Fatalf("ResolveDict() error = %v", err)
	}
	if s, _ := d.GetString("Key"); string(s.Value) != "Value" {
		t.Errorf("ResolveDict() /Key = %v", d.Get("Key"))
	}

	arr, err := resolver.ResolveArray(core.Array{ref(80)})
	if err != nil {
		t.Fatalf("ResolveArray() error = %v", err)
	}
	if s, ok := arr[0].(core.String); !ok || string(s.Value) != "Value" {
		t.Errorf("ResolveArray()[0] = %v", arr[0])
	}

	obj, err := resolver.GetObjectResolved(82)
	if err != nil {
		t.Fatalf("GetObjectResolved() error = %v", err)
	}
	if s, ok := obj.(core.String); !ok || string(s.Value) != "Value" {
		t.Errorf("GetObjectResolved() = %v", obj)
	}

	obj, err = resolver.GetObjectResolvedDeep(81)
	if err != nil {
		t.Fatalf("GetObjectResolvedDeep() error = %v", err)
	}
	if diff := cmp.Diff(dict("Ref", core.NewString("Value")), obj, objectOpts); diff != "" {
		t.Errorf("GetObjectResolvedDeep() mismatch (-want +got):\n%s", diff)
	}
}

func TestWithMaxDepthIgnoresNonPositive(t *testing.T) {
	r := NewResolver(newMockReader(), WithMaxDepth(0))
	if r.maxDepth != 100 {
		t.Errorf("maxDepth = %d, want 100", r.maxDepth)
	}
}
