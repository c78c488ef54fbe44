package connwatch

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Listen announces on the tcp address addr and tracks every
// accepted connection in gauge.
func Listen(addr string, gauge prometheus.Gauge) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewListener(ln, gauge), nil
}

func listen(srv *http.Server, fallback string, gauge prometheus.Gauge) (net.Listener, error) {
	addr := srv.Addr
	if addr == "" {
		addr = fallback
	}
	return Listen(addr, gauge)
}

// ListenAndServe behaves like srv.ListenAndServe, tracking
// the accepted connections in gauge.
func ListenAndServe(srv *http.Server, gauge prometheus.Gauge) error {
	ln, err := listen(srv, ":http", gauge)
	if err != nil {
		return err
	}
	defer ln.Close()

	return srv.Serve(ln)
}

// ListenAndServeTLS behaves like srv.ListenAndServeTLS.
// certFile and keyFile may be empty when srv.TLSConfig provides certificates.
func ListenAndServeTLS(srv *http.Server, certFile, keyFile string, gauge prometheus.Gauge) error {
	ln, err := listen(srv, ":https", gauge)
	if err != nil {
		return err
	}
	defer ln.Close()

	return srv.ServeTLS(ln, certFile, keyFile)
}
