// Package filter evaluates trigger filter predicates against events.
//
// Two kinds of predicate exist: exact-match attribute predicates, resolved
// through an Accessor, and optional CEL expressions evaluated by an
// Evaluator. Both are pure; neither touches correlation state.
package filter
