package core

import (
	"testing"
)

func TestObjectTypeString(t *testing.T) {
	tests := []struct {
		typ  ObjectType
		want string
	}{
		{ObjNull, "Null"},
		{ObjBool, "Bool"},
		{ObjInt, "Int"},
		{ObjReal, "Real"},
		{ObjString, "String"},
		{ObjName, "Name"},
		{ObjArray, "Array"},
		{ObjDict, "Dict"},
		{ObjStream, "Stream"},
		{ObjIndirect, "IndirectRef"},
		{ObjectType(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("ObjectType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestDictKeepsInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set("Type", Name("Page"))
	d.Set("Parent", IndirectRef{Number: 2})
	d.Set("MediaBox", Array{Int(0), Int(0), Int(612), Int(792)})
	d.Set("Type", Name("Pages"))

	want := []string{"Type", "Parent", "MediaBox"}
	got := d.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
	if name, _ := d.GetName("Type"); name != "Pages" {
		t.Errorf("Type = %q, want Pages after overwrite", name)
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
}

func TestDictDelete(t *testing.T) {
	d := mkDict("A", Int(1), "B", Int(2), "C", Int(3))
	d.Delete("B")
	d.Delete("missing")
	if d.Has("B") {
		t.Error("B still present after Delete")
	}
	if got := d.Keys(); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Keys() = %v, want [A C]", got)
	}

	d.Set("A", nil)
	if d.Has("A") {
		t.Error("setting nil should remove the key")
	}
}

func TestDictGetters(t *testing.T) {
	inner := mkDict("X", Int(1))
	d := mkDict(
		"Int", Int(42),
		"IntReal", Real(120),
		"Real", Real(1.5),
		"Name", Name("Foo"),
		"Bool", Bool(true),
		"String", NewString("hello"),
		"Array", Array{Int(1)},
		"Dict", inner,
		"Ref", IndirectRef{Number: 7, Generation: 1},
	)

	if v, ok := d.GetInt("Int"); !ok || v != 42 {
		t.Errorf("GetInt(Int) = %v, %v", v, ok)
	}
	if v, ok := d.GetInt("IntReal"); !ok || v != 120 {
		t.Errorf("GetInt(IntReal) = %v, %v", v, ok)
	}
	if _, ok := d.GetInt("Real"); ok {
		t.Error("GetInt(Real) should fail for a fractional value")
	}
	if v, ok := d.GetReal("Int"); !ok || v != 42 {
		t.Errorf("GetReal(Int) = %v, %v", v, ok)
	}
	if v, ok := d.GetName("Name"); !ok || v != "Foo" {
		t.Errorf("GetName = %v, %v", v, ok)
	}
	if v, ok := d.GetBool("Bool"); !ok || !bool(v) {
		t.Errorf("GetBool = %v, %v", v, ok)
	}
	if v, ok := d.GetString("String"); !ok || string(v.Value) != "hello" {
		t.Errorf("GetString = %v, %v", v, ok)
	}
	if v, ok := d.GetArray("Array"); !ok || v.Len() != 1 {
		t.Errorf("GetArray = %v, %v", v, ok)
	}
	if v, ok := d.GetDict("Dict"); !ok || v != inner {
		t.Errorf("GetDict = %v, %v", v, ok)
	}
	if v, ok := d.GetIndirectRef("Ref"); !ok || v.Number != 7 || v.Generation != 1 {
		t.Errorf("GetIndirectRef = %v, %v", v, ok)
	}
	if _, ok := d.GetName("missing"); ok {
		t.Error("GetName(missing) should fail")
	}

	var nilDict *Dict
	if nilDict.Get("A") != nil || nilDict.Has("A") || nilDict.Len() != 0 {
		t.Error("nil dictionary should behave as empty")
	}
}

func TestArrayGetters(t *testing.T) {
	a := Array{Int(1), Real(2.5), Name("N")}
	if v, ok := a.GetInt(0); !ok || v != 1 {
		t.Errorf("GetInt(0) = %v, %v", v, ok)
	}
	if v, ok := a.GetReal(0); !ok || v != 1 {
		t.Errorf("GetReal(0) = %v, %v", v, ok)
	}
	if v, ok := a.GetReal(1); !ok || v != 2.5 {
		t.Errorf("GetReal(1) = %v, %v", v, ok)
	}
	if v, ok := a.GetName(2); !ok || v != "N" {
		t.Errorf("GetName(2) = %v, %v", v, ok)
	}
	if a.Get(3) != nil || a.Get(-1) != nil {
		t.Error("out of range Get should return nil")
	}
}

func TestObjectString(t *testing.T) {
	tests := []struct {
		obj  Object
		want string
	}{
		{Null{}, "null"},
		{Bool(false), "false"},
		{Int(-3), "-3"},
		{Real(0.25), "0.25"},
		{Name("Type"), "/Type"},
		{IndirectRef{Number: 12, Generation: 0}, "12 0 R"},
		{Array{Int(1), Name("A")}, "[1 /A]"},
		{mkDict("A", Int(1), "B", Null{}), "<</A 1 /B null>>"},
	}
	for _, tt := range tests {
		if got := tt.obj.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
