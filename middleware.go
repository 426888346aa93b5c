package searchaccel

import (
	"net/http"
	"time"
)

// statusWriter records the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// requestLogger logs every request with its cache outcome.
func (a *Accelerator) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		started := time.Now()
		next.ServeHTTP(sw, r)
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		a.log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("sourceIp", requestSourceIP(r)).
			Str("cache", sw.Header().Get("X-Cache-Status")).
			Int("status", status).
			Dur("duration", time.Since(started)).
			Msg("Sending response to client")
	})
}

// requestSourceIP strips the port from RemoteAddr:
// 1.2.3.4:10000 for ipv4, [1:2:3]:10000 for ipv6.
func requestSourceIP(r *http.Request) string {
	ipAndPort := r.RemoteAddr
	for i := len(ipAndPort) - 1; i >= 0; i-- {
		if ipAndPort[i] == ':' {
			return ipAndPort[:i]
		}
	}
	return ipAndPort
}
