package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/domain"
)

// PackageCatalog defines the methods that the packages handler requires.
type PackageCatalog interface {
	Packages(ctx context.Context) ([]domain.Package, error)
}

// PackagesHandler serves the staking package catalog.
type PackagesHandler struct {
	catalog PackageCatalog
	logger  *slog.Logger
}

// NewPackagesHandler creates a PackagesHandler with the given service and logger.
func NewPackagesHandler(catalog PackageCatalog, logger *slog.Logger) *PackagesHandler {
	return &PackagesHandler{catalog: catalog, logger: logger}
}

// listPackagesResponse wraps the package catalog response.
type listPackagesResponse struct {
	Packages []domain.Package `json:"packages"`
}

// ListPackages returns every configured staking package, active or not.
// The dashboard greys out inactive ones rather than hiding them.
// GET /api/packages
func (h *PackagesHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.Packages(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list packages")
		return
	}

	if packages == nil {
		packages = []domain.Package{}
	}

	writeJSON(w, http.StatusOK, listPackagesResponse{Packages: packages})
}
