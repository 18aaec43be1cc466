// Package x402 implements the protocol primitives for an HTTP 402 "Payment
// Required" micropayment facilitator: the chain registry, price conversion,
// nonce generation, wire types, HTTP header names, and the 402
// response/request assembler and parser shared by the facilitator service,
// the agent client, and resource-server adapters.
package x402
