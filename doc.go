// Package eventserver implements a minimal reactor-pattern TCP server.
//
// It has two layers. [Engine] is a generic lifecycle state machine, that runs
// a blocking fetch/process loop on a dedicated goroutine, until stopped,
// delegating every action to an injected set of [Hooks]. [TCPServer] is an
// Engine whose hooks multiplex a single listening socket, and all of its
// accepted connections, over one readiness selector (epoll on Linux, kqueue
// on Darwin).
//
// The reactor goroutine performs all socket I/O, and never runs handler code:
// every notification is submitted to an [Executor], such as a
// [github.com/joeycumines/go-eventserver/workerpool.Pool].
//
// Bytes are delivered as read, without framing.
//
// # Lifecycle
//
//	StateStopped -> StateStarting -> StateRunning -> StateStopping -> StateDone
//
// Start and Stop never return errors. Failures of any hook, including
// panics, are reported exactly once through the failure hook (for a
// TCPServer, [Handler.OnFailure]), and never prevent the lifecycle reaching
// StateDone.
//
// # Connections
//
// A connection is closed by the reactor when the peer closes it (end of
// stream, notified via [Handler.OnDisconnect]), when reading from it fails
// (not notified), or when the server shuts down (not notified).
package eventserver
