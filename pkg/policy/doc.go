// Package policy gates every compile and execute request behind an ordered
// rule chain with audit logging. Rules decide ALLOW, REJECT, or REWRITE;
// rejection stops evaluation before any dispatch, and rewrites are chainable.
// The Facade composes the compiler and executor behind the chain and returns
// discriminated results, never panicking for expected failure modes.
//
// Rules can be plain functions or compiled from Rego modules via NewRegoRule,
// which keeps authorization logic hot-swappable without recompiling callers.
package policy
