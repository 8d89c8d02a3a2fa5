package runtime

import (
	"net/http"
)

// LivenessText is the body served by the liveness endpoint.
const LivenessText = "Kafka consumer is running"

func livenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(LivenessText))
	})
}

// readinessHandler answers 200 while the consumer is subscribed and 503
// otherwise. The body names the current state.
func readinessHandler(state func() ConsumerState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := state()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if current.Ready() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(current.String()))
	})
}

// registerHealthEndpoints mounts liveness on "/" and "/healthz" and
// readiness on "/readyz".
func registerHealthEndpoints(s *Service, port int, state func() ConsumerState) {
	if port <= 0 {
		return
	}
	s.RegisterHTTPHandler(port, "/", livenessHandler())
	s.RegisterHTTPHandler(port, "/healthz", livenessHandler())
	s.RegisterHTTPHandler(port, "/readyz", readinessHandler(state))
}
