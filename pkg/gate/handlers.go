package gate

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/rbac"
)

// Handlers evaluates gates in batch for the SPA, which collects every
// gate on a page into one request at render time.
type Handlers struct{}

// NewHandlers creates gate HTTP handlers.
func NewHandlers() *Handlers {
	return &Handlers{}
}

// RegisterRoutes attaches the gate routes to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/gates/evaluate", h.evaluate).Methods(http.MethodPost)
}

// gateSpec is the wire form of one gate. Mode discriminates the payload:
// "hide" admits fallback, "disable" admits tooltip; supplying the other
// field is rejected rather than silently dropped.
type gateSpec struct {
	ID          string            `json:"id"`
	Permissions []rbac.Permission `json:"permissions"`
	RequireAll  bool              `json:"require_all,omitempty"`
	Mode        string            `json:"mode,omitempty"`
	Tooltip     string            `json:"tooltip,omitempty"`
	Fallback    string            `json:"fallback,omitempty"`
}

type evaluateRequest struct {
	Gates []gateSpec `json:"gates"`
}

type evaluateResponse struct {
	Gates map[string]Decision `json:"gates"`
}

func (h *Handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	access, ok := rbac.AccessFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req evaluateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Gates) == 0 {
		httputil.WriteBadRequest(w, "at least one gate is required")
		return
	}

	decisions := make(map[string]Decision, len(req.Gates))
	for _, spec := range req.Gates {
		if spec.ID == "" {
			httputil.WriteBadRequest(w, "every gate needs an id")
			return
		}
		mode, err := spec.mode()
		if err != "" {
			httputil.WriteBadRequest(w, err)
			return
		}
		decisions[spec.ID] = Evaluate(access, Request{
			Permissions: spec.Permissions,
			RequireAll:  spec.RequireAll,
			Mode:        mode,
		})
	}

	httputil.WriteSuccess(w, evaluateResponse{Gates: decisions})
}

// mode converts the wire discriminator into the tagged union, enforcing
// field exclusivity at the API boundary.
func (s gateSpec) mode() (Mode, string) {
	switch s.Mode {
	case "", "hide":
		if s.Tooltip != "" {
			return nil, "gate " + s.ID + ": tooltip is only valid in disable mode"
		}
		return Hide{Fallback: s.Fallback}, ""
	case "disable":
		if s.Fallback != "" {
			return nil, "gate " + s.ID + ": fallback is only valid in hide mode"
		}
		return Disable{Tooltip: s.Tooltip}, ""
	default:
		return nil, "gate " + s.ID + ": unknown mode " + s.Mode
	}
}
