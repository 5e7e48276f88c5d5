package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/idlab-discover/pointcast/internal/runtime"
	"github.com/idlab-discover/pointcast/internal/server/http/controllers"
)

// Server is the control-plane HTTP server.
type Server struct {
	rt  *runtime.Runtime
	srv *http.Server
	lis net.Listener
}

// New builds the mux and registers every controller.
func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()

	controllers.NewDatasetsController(rt).RegisterRoutes(mux)
	controllers.NewEgressController(rt).RegisterRoutes(mux)
	controllers.NewFramesController(rt).RegisterRoutes(mux)
	controllers.NewJobsController(rt).RegisterRoutes(mux)
	controllers.NewStreamsController(rt).RegisterRoutes(mux)
	controllers.NewSocketsController(rt).RegisterRoutes(mux)

	mux.Handle("/metrics", rt.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.CheckHealth(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	return &Server{rt: rt, srv: &http.Server{Handler: cors(mux)}}
}

// Handler exposes the wrapped mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
