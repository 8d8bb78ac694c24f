package nodes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	registry *Registry
	resolver *Resolver
}

func NewHandler(registry *Registry, resolver *Resolver) *Handler {
	return &Handler{registry: registry, resolver: resolver}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/nodes/register", h.RegisterNodes)
	g.GET("/nodes/resolve", h.ResolveConflicts)
	g.GET("/nodes/get", h.GetNodes)
}

type registerNodesRequest struct {
	Nodes []string `json:"nodes"`
}

func (h *Handler) RegisterNodes(c echo.Context) error {
	var req registerNodesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Nodes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "please supply a valid list of nodes")
	}

	if _, err := h.registry.RegisterAll(req.Nodes); err != nil {
		if errors.Is(err, ErrInvalidNode) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "new nodes have been added",
		"total_nodes": h.registry.List(),
	})
}

func (h *Handler) ResolveConflicts(c echo.Context) error {
	ctx := c.Request().Context()

	replaced, err := h.resolver.Resolve(ctx)
	if err != nil && !errors.Is(err, ErrPeerUnavailable) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	chain, err := h.resolver.svc.Chain(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if replaced {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"replaced":  true,
			"chain":     chain,
			"new_chain": chain,
			"message":   "our chain was replaced",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"replaced": false,
		"chain":    chain,
		"message":  "our chain is authoritative",
	})
}

func (h *Handler) GetNodes(c echo.Context) error {
	peers := h.registry.List()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"nodes": peers,
		"count": len(peers),
	})
}
