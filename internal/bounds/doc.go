// Package bounds implements the Merkle allow-list engine for delegated
// execution policies: deterministic leaf hashing over (target, selector)
// pairs, root construction with duplicate-last-leaf padding, inclusion proof
// generation, and proof verification compatible with the on-chain verifier.
// The committed action list is caller-retained state; the Cache interface
// keeps it around so proofs can be regenerated after registration.
package bounds
