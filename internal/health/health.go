// Package health serves the liveness and readiness probes for the pipeline
// process.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// runs every registered [Checker] (active session manager, history database)
// and answers 503 until all of them pass, so a load balancer or supervisor
// will not route work to a process whose dependencies are down.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// readyTimeout bounds each individual readiness check.
const readyTimeout = 3 * time.Second

// Checker probes one dependency for readiness. Check returns nil when the
// dependency can serve and must honor ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// checkResult is one entry in the readiness response. Entries appear in
// registration order.
type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type probeResponse struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The checker set is fixed at
// construction; Handler itself holds no mutable state.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers. With no checkers /readyz
// always reports ready.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness. Reaching the handler is the whole check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, probeResponse{Status: "ok"})
}

// Readyz runs each checker in registration order under [readyTimeout] and
// reports 503 with per-check detail when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{
		Status: "ok",
		Checks: make([]checkResult, 0, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Check(ctx)
		cancel()

		res := checkResult{Name: c.Name, Status: "ok"}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			resp.Status = "fail"
			code = http.StatusServiceUnavailable
		}
		resp.Checks = append(resp.Checks, res)
	}

	respond(w, code, resp)
}

func respond(w http.ResponseWriter, code int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
