package connwatch

import (
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// A "watched" implementation of net.Conn that releases
// its slot in the open connections gauge exactly once.
type WatchedConn struct {
	net.Conn
	gauge prometheus.Gauge
	once  sync.Once
}

var _ net.Conn = &WatchedConn{}

func (c *WatchedConn) Close() error {
	c.once.Do(c.gauge.Dec)
	return c.Conn.Close()
}

// A "watched" implementation of net.Listener
type WatchedListener struct {
	inner net.Listener
	gauge prometheus.Gauge
}

func NewListener(inner net.Listener, gauge prometheus.Gauge) *WatchedListener {
	return &WatchedListener{inner: inner, gauge: gauge}
}

func (l *WatchedListener) Accept() (net.Conn, error) {
	c, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	l.gauge.Inc()
	return &WatchedConn{Conn: c, gauge: l.gauge}, nil
}

func (l *WatchedListener) Close() error {
	return l.inner.Close()
}

func (l *WatchedListener) Addr() net.Addr {
	return l.inner.Addr()
}

var _ net.Listener = &WatchedListener{}
