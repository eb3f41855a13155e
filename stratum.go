// Package stratum is the root of a modular framework for byzantine fault
// tolerant state machine replication. It fixes the contracts between the
// moving parts of a replicated service and leaves the consensus algorithm
// itself pluggable:
//
//   - message defines the wire envelope: the tagged union of system messages,
//     the digest-carrying header and the codec contract.
//   - service composes the capability bundles (application payloads, ordering
//     protocol messages, state and log transfer messages) that fix one
//     service's wire surface, and hosts the verification dispatcher.
//   - orderprotocol is the driver contract of a consensus implementation:
//     poll results, decision aggregation and the persistence hooks.
//   - statetransfer and logtransfer are the catch-up sub-protocol contracts.
//   - replica owns the loop that drives all three protocols, routes verified
//     messages and feeds decided batches to the executor.
//   - network, p2p and codec provide transports and wire codecs; exec,
//     request and timeouts hold the execution handle, the request
//     pre-processor and the shared timeout service.
//
// A deployment picks an ordering protocol, wraps its application behind the
// service bundles and hands everything to replica.New.
package stratum
