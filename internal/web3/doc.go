// Package web3 houses blockchain connectivity utilities for the AgentPact
// verifier contract, including the signer abstraction, typed client
// interface, and multi-chain configuration helpers. Concrete EVM bindings
// live in the ethereum subpackage.
package web3
