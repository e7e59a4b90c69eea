package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"mpc-drive-core/control"
	"mpc-drive-core/utils"
)

// FailurePolicy decides what command to send when a cycle fails.
type FailurePolicy int

const (
	// PolicyHold re-issues the previous command.
	PolicyHold FailurePolicy = iota
	// PolicyStop commands zero steering and full brake.
	PolicyStop
)

func (p FailurePolicy) String() string {
	if p == PolicyStop {
		return "stop"
	}
	return "hold"
}

func parsePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "hold":
		return PolicyHold, nil
	case "stop":
		return PolicyStop, nil
	}
	return 0, fmt.Errorf("unknown failure policy %q (want hold or stop)", s)
}

// fallbackCommand applies the policy against the last issued command.
func (p FailurePolicy) fallbackCommand(last control.Command) control.Command {
	if p == PolicyStop {
		return control.Command{Steering: 0, Throttle: -1}
	}
	return last
}

// Server accepts simulator websocket connections and runs one control
// session per connection. Sessions are fully isolated: each owns its
// pipeline and carryover state, so concurrent connections never share
// solver scratch.
type Server struct {
	Addr           string
	Config         control.Config
	Policy         FailurePolicy
	ActuationDelay time.Duration
	Log            *utils.Logger
	Mirror         *CommandMirror
}

// Run listens until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	srv := &http.Server{
		Addr:    s.Addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errc := make(chan error, 1)
	go func() {
		s.Log.Info("Listening on %s (policy=%v delay=%s horizon=%d)",
			s.Addr, s.Policy, s.ActuationDelay, s.Config.HorizonSteps)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Log.Error("Websocket accept failed: %v", err)
		return
	}
	c.SetReadLimit(1 << 20)

	sess, err := newSession(s, c)
	if err != nil {
		s.Log.Error("Session setup failed: %v", err)
		c.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	s.Log.Info("Simulator connected from %s", r.RemoteAddr)
	sess.serve(r.Context())
	s.Log.Info("Simulator disconnected")
}
