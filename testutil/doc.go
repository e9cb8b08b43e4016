/*
Package testutil provides testing utilities for the auction escrow protocol.

It contains fixtures and generators shared by the package tests: a manual
clock for driving temporal gates deterministically, funded ledger setup,
auction parameter generators with functional options, and a harness that
wires a state machine, settlement engine and simulated oracle together.

# Typical Usage

	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithWindow(1_100, 2_000))
	clock.Set(1_100)
	h.StartAuction(t, "alice", addr)
	h.PlaceSealedBid(t, "bob", addr, 150, 200)

The harness funds bidder accounts on demand and seals bid values against the
simulated oracle's exchange key, so tests state intent rather than plumbing.
*/
package testutil
