// Package relay bridges routers running in different processes.
//
// A relay forwards messages matching selected patterns to a shared transport
// and sends messages arriving from the transport into the local router.
// Every relay has a random origin ID. Envelopes carrying the relay's own
// origin are dropped, and messages injected by any relay are never forwarded
// again, so two relays on the same channel do not echo forever.
//
// Two transports are provided: Redis pub/sub and PostgreSQL LISTEN/NOTIFY.
package relay
