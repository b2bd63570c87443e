// Package transport runs TCP and UDP endpoints that hand received bytes to
// observers as buffer.Buffer values.
//
// A TCPServer accepts clients up to MaxConnections and runs one read loop
// per client. A UDPServer runs one receive loop and dispatches every
// datagram on its own goroutine. A Client dials a single outbound
// connection and shares the read loop with accepted ones. Every socket
// handler and connection holds an id from a socket.Binder for as long as it
// is open.
//
// Lifecycle changes are notifications, not errors: overflow, idle timeouts
// and disconnects reach the On* observers. Loops block on the socket and
// exit when the handler's status flag drops.
package transport
