// Package probe implements the HTTP/HTTPS transport used by the scanner.
// Every call opens a fresh connection so repeated attempts measure the full
// connect, handshake and request round trip.
package probe
