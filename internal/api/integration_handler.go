package api

import (
	"net/http"
)

// ListIntegrations возвращает зарегистрированные subtypes.
// GET /api/v1/integrations
func (h *Handler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	types := h.registry.Types()

	result := make([]IntegrationResponse, len(types))
	for i, t := range types {
		result[i] = IntegrationResponse{Type: t}
	}

	List(w, result, len(result))
}

// ValidateIntegration проверяет конфигурацию узла для одной интеграции.
// POST /api/v1/integrations/{type}/validate
func (h *Handler) ValidateIntegration(w http.ResponseWriter, r *http.Request) {
	step, err := h.registry.Get(r.PathValue("type"))
	if err != nil {
		NotFound(w, err.Error())
		return
	}

	var req ValidateConfigRequest
	if !h.decode(w, r, &req) {
		return
	}

	Success(w, step.Validate(req.Config))
}
