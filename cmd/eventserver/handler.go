package main

import (
	"sync/atomic"

	"github.com/joeycumines/go-eventserver"
	"github.com/joeycumines/logiface"
)

// logHandler logs every notification, optionally echoing received bytes.
type logHandler struct {
	logger   *logiface.Logger[logiface.Event]
	failures atomic.Int32
	echo     bool
}

var _ eventserver.Handler = (*logHandler)(nil)

func (x *logHandler) OnAccept(conn *eventserver.Conn) {
	x.logger.Info().
		Uint64("conn", conn.ID()).
		Stringer("remote", conn.RemoteAddr()).
		Log("connection accepted")
}

func (x *logHandler) OnDisconnect(conn *eventserver.Conn) {
	x.logger.Info().
		Uint64("conn", conn.ID()).
		Log("connection closed")
}

func (x *logHandler) OnRead(conn *eventserver.Conn, data []byte) {
	x.logger.Debug().
		Uint64("conn", conn.ID()).
		Int("bytes", len(data)).
		Log("data received")
	if !x.echo {
		return
	}
	if _, err := conn.Write(data); err != nil {
		x.logger.Warning().
			Uint64("conn", conn.ID()).
			Err(err).
			Log("echo failed")
	}
}

func (x *logHandler) OnStart(port int) {
	x.logger.Notice().
		Int("port", port).
		Log("server started")
}

func (x *logHandler) OnStop() {
	x.logger.Notice().Log("server stopped")
}

func (x *logHandler) OnFailure(state eventserver.State, err error) {
	x.failures.Add(1)
	x.logger.Err().
		Str("state", state.String()).
		Err(err).
		Log("server failed")
}
