// Package pipeline orchestrates the module's six components into the
// single data flow spec.md describes:
//
//	bytes -> Detector -> Reader[fmt] -> IR -> (Validate? Repair? Transform* Optimize?) -> Writer[fmt] -> bytes
//
// Each arrow is synchronous and deterministic; a Pipeline value is safe for
// concurrent use across independent Convert calls once constructed, since
// every stage operates on its own cloned Document.
package pipeline
