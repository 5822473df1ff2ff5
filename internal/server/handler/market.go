package handler

import (
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// InstrumentHandler serves the instrument catalog.
type InstrumentHandler struct {
	catalog *catalog.Catalog
}

// NewInstrumentHandler creates an InstrumentHandler.
func NewInstrumentHandler(cat *catalog.Catalog) *InstrumentHandler {
	return &InstrumentHandler{catalog: cat}
}

// List returns the catalog, optionally one market.
// GET /api/instruments?market=
func (h *InstrumentHandler) List(w http.ResponseWriter, r *http.Request) {
	insts := h.catalog.All()
	if m := r.URL.Query().Get("market"); m != "" {
		market, err := domain.ParseMarket(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		insts = h.catalog.ByMarket(market)
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": insts})
}
