// Package ir provides the hardware-circuit intermediate representation for hwir.
//
// The IR is a hierarchy of namespaces owning modules, generators, named types and
// type generators. Modules may carry a Definition: a set of Instances (use-sites of
// other modules or generators) plus connections between their ports.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every Instantiable (Module or Generator) lives in the Context arena and is
//     addressed by a stable Handle; analysis caches key on handles, never pointers
//   - Named types and type generators come in flip pairs that reference each other
//     by name through the owning Namespace
//   - Generator arguments have exactly four kinds: int, string, type, bool
//   - Fatal conditions are returned as *Error values carrying a Code
package ir
