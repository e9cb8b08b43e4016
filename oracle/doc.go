// Package oracle provides the sealed-bid envelope codec and implementations
// of the auction.Oracle trust boundary.
//
// Bidders seal their bid value to the oracle's X25519 exchange key with
// Seal; the resulting CBOR envelope is what the escrow core stores and
// forwards. The SimulatedOracle opens envelopes in-process and returns
// HMAC-proved results for tests and demos; production deployments verify
// results from a confidential VM through AttestedVerifier backed by the tdx
// package.
package oracle
