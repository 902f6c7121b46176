// Package resolver expands PDF indirect references.
//
// PDF documents refer to shared objects with indirect references such as
// "5 0 R". An [ObjectResolver] follows them through any [ObjectReader],
// usually a *reader.Reader:
//
//	res := resolver.NewResolver(r)
//	obj, err := res.Resolve(ref)
//
// # Deep Resolution
//
// ResolveDeep copies an object tree with every reachable reference
// replaced by its target:
//
//	resolved, err := res.ResolveDeep(obj)
//
// Documents are graphs, not trees: a page points to its parent, which lists
// the page among its kids. A reference back to an object that is already
// being expanded on the current path stays a reference. Nesting is limited
// by [WithMaxDepth]:
//
//	res := resolver.NewResolver(r, resolver.WithMaxDepth(50))
package resolver
