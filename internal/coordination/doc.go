// Package coordination implements the client-side core of the AgentPact
// protocol: participant-set canonicalization, domain-separated struct hashing
// for intents and acceptance attestations, message builders with their
// validation gates, and the lifecycle status model shared with the on-chain
// verifier. Everything here is pure computation; chain access lives in
// internal/web3 and persistence behind the Store interface.
package coordination
