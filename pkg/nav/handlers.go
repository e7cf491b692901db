package nav

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
)

// Handlers serves the filtered navigation tree. Filtering here is a
// rendering convenience; every destination the tree links to enforces
// its own permissions server-side.
type Handlers struct {
	loader    *Loader
	licensing *modules.Service
}

// NewHandlers creates navigation HTTP handlers.
func NewHandlers(loader *Loader, licensing *modules.Service) *Handlers {
	return &Handlers{loader: loader, licensing: licensing}
}

// RegisterRoutes attaches the navigation routes to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tenants/{tenant_id}/navigation", h.getNavigation).Methods(http.MethodGet)
}

func (h *Handlers) getNavigation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	access, ok := rbac.AccessFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	lic, err := h.licensing.Snapshot(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	items := Filter(h.loader.Tree(), access, lic)
	httputil.WriteSuccess(w, map[string]interface{}{
		"items":   items,
		"loading": access.Loading(),
	})
}
