// Package domain defines the core domain types and interfaces.
//
// Identity and handshake data, the typed server/client message union, publish
// requests and registry snapshots. No implementation code beyond validation and
// wire encoding - adapters and the registry depend on these contracts.
package domain
