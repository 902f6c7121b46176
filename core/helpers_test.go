package core

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// objectOpts lets cmp look inside dictionaries and streams.
var objectOpts = cmp.Options{
	cmp.AllowUnexported(Dict{}, Stream{}),
	cmpopts.IgnoreFields(Stream{}, "decoded"),
	cmpopts.EquateEmpty(),
}

// mkDict builds a dictionary from alternating keys and values.
func mkDict(kv ...interface{}) *Dict {
	d := NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(Object))
	}
	return d
}

func parseOne(input string) (Object, error) {
	return NewParserBytes([]byte(input)).ReadObject()
}
