package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

// API actions
const (
	ActionGetAll            = "get_all"
	ActionAddItem           = "add_item"
	ActionUpdateItem        = "update_item"
	ActionDeleteItem        = "delete_item"
	ActionIncrementDownload = "increment_download"
	ActionIncrementVisitor  = "increment_visitor"
	ActionLogin             = "login"
	ActionUpdateConfig      = "update_config"
	ActionRateItem          = "rate_item"
	ActionResetItemStats    = "reset_item_stats"
)

var adminActions = map[string]bool{
	ActionAddItem:        true,
	ActionUpdateItem:     true,
	ActionDeleteItem:     true,
	ActionUpdateConfig:   true,
	ActionResetItemStats: true,
}

// Actions lists every action the API understands.
var Actions = []string{
	ActionGetAll, ActionAddItem, ActionUpdateItem, ActionDeleteItem,
	ActionIncrementDownload, ActionIncrementVisitor, ActionLogin,
	ActionUpdateConfig, ActionRateItem, ActionResetItemStats,
}

// IsAdminAction reports whether action changes catalog content or site
// configuration.
func IsAdminAction(action string) bool {
	return adminActions[action]
}

var materialFiles = map[string]entities.DocumentKey{
	"items.txt":  entities.DocumentItems,
	"stats.txt":  entities.DocumentStats,
	"config.txt": entities.DocumentConfig,
}

// CatalogHandler serves the multiplexed action endpoint
type CatalogHandler struct {
	catalog ports.CatalogService
	admin   ports.AdminService
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog ports.CatalogService, admin ports.AdminService, logger *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		admin:   admin,
		logger:  logger.WithComponent("http"),
	}
}

// Dispatch godoc
// @Summary Catalog API
// @Description Single endpoint selected by the action query parameter
// @Tags catalog
// @Accept json
// @Produce json
// @Param action query string true "Action name" Enums(get_all, add_item, update_item, delete_item, increment_download, increment_visitor, login, update_config, rate_item, reset_item_stats)
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} FailureResponse
// @Failure 404 {object} FailureResponse
// @Failure 500 {object} ErrorResponse
// @Router /api.php [post]
func (h *CatalogHandler) Dispatch(c echo.Context) error {
	switch action := c.QueryParam("action"); action {
	case ActionGetAll:
		return h.getAll(c)
	case ActionAddItem:
		return h.addItem(c)
	case ActionUpdateItem:
		return h.updateItem(c)
	case ActionDeleteItem:
		return h.deleteItem(c)
	case ActionIncrementDownload:
		return h.incrementDownload(c)
	case ActionIncrementVisitor:
		return h.incrementVisitor(c)
	case ActionLogin:
		return h.login(c)
	case ActionUpdateConfig:
		return h.updateConfig(c)
	case ActionRateItem:
		return h.rateItem(c)
	case ActionResetItemStats:
		return h.resetItemStats(c)
	default:
		h.logger.Debugw("Unknown action", "action", action)
		return c.JSON(http.StatusOK, ErrorResponse{Error: "Invalid Action"})
	}
}

// Material godoc
// @Summary Raw document
// @Description Returns items.txt, stats.txt or config.txt as pretty JSON
// @Tags catalog
// @Produce json
// @Param name path string true "Document file" Enums(items.txt, stats.txt, config.txt)
// @Success 200 {object} interface{}
// @Failure 404 {object} ErrorResponse
// @Router /material/{name} [get]
func (h *CatalogHandler) Material(c echo.Context) error {
	key, ok := materialFiles[c.Param("name")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	doc, err := h.catalog.Document(c.Request().Context(), key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}

	return c.JSONPretty(http.StatusOK, doc, "    ")
}

func (h *CatalogHandler) getAll(c echo.Context) error {
	snapshot, err := h.catalog.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *CatalogHandler) addItem(c echo.Context) error {
	var req ports.AddItemRequest
	if err := h.bindRequest(c, &req); err != nil {
		return h.fail(c, err)
	}

	id, err := h.catalog.AddItem(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, AddItemResponse{Success: true, ID: id})
}

func (h *CatalogHandler) updateItem(c echo.Context) error {
	var fields map[string]json.RawMessage
	if err := decodeBody(c, &fields); err != nil {
		return h.fail(c, err)
	}

	req := ports.UpdateItemRequest{Fields: fields}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &req.ID); err != nil {
			return h.fail(c, fmt.Errorf("%w: id must be an integer", entities.ErrInvalidInput))
		}
	}
	if err := c.Validate(&req); err != nil {
		return h.fail(c, fmt.Errorf("%w: %s", entities.ErrInvalidInput, validationMessage(err)))
	}

	found, err := h.catalog.UpdateItem(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: found})
}

func (h *CatalogHandler) deleteItem(c echo.Context) error {
	var req ports.ItemRequest
	if err := h.bindRequest(c, &req); err != nil {
		return h.fail(c, err)
	}

	if _, err := h.catalog.DeleteItem(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *CatalogHandler) incrementDownload(c echo.Context) error {
	var req ports.ItemRequest
	if err := h.bindRequest(c, &req); err != nil {
		return h.fail(c, err)
	}

	if err := h.catalog.IncrementDownload(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *CatalogHandler) incrementVisitor(c echo.Context) error {
	if err := h.catalog.IncrementVisitor(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *CatalogHandler) login(c echo.Context) error {
	var req ports.LoginRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	result, err := h.admin.Login(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	if !result.Success {
		h.logger.LogSecurityEvent("login_failed", c.RealIP(), nil)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) updateConfig(c echo.Context) error {
	var req ports.UpdateConfigRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	if err := h.admin.UpdateConfig(c.Request().Context(), req); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *CatalogHandler) rateItem(c echo.Context) error {
	var req ports.RateItemRequest
	if err := h.bindRequest(c, &req); err != nil {
		return h.fail(c, err)
	}

	result, err := h.catalog.RateItem(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) resetItemStats(c echo.Context) error {
	var req ports.ItemRequest
	if err := h.bindRequest(c, &req); err != nil {
		return h.fail(c, err)
	}

	found, err := h.catalog.ResetItemStats(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: found})
}

// bindRequest decodes the JSON body into req and validates it.
func (h *CatalogHandler) bindRequest(c echo.Context, req interface{}) error {
	if err := decodeBody(c, req); err != nil {
		return err
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", entities.ErrInvalidInput, validationMessage(err))
	}
	return nil
}

// fail renders client errors in the action endpoint's shape and hands
// everything else to the server's error handler.
func (h *CatalogHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, entities.ErrInvalidInput):
		h.logger.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID)).
			Debugw("Rejected request", "action", c.QueryParam("action"), "error", err)
		return c.JSON(http.StatusBadRequest, FailureResponse{Success: false, Error: clientMessage(err)})
	case errors.Is(err, entities.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, FailureResponse{Success: false, Error: "Item not found"})
	}
	return err
}

// decodeBody reads the raw request body as JSON whatever its content type.
// An empty body decodes as an empty object.
func decodeBody(c echo.Context, dst interface{}) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", entities.ErrInvalidInput)
	}
	return nil
}

// clientMessage returns the detail after the invalid input sentinel, dropping
// any wrapping context added on the way up.
func clientMessage(err error) string {
	msg := err.Error()
	prefix := entities.ErrInvalidInput.Error() + ": "
	if idx := strings.LastIndex(msg, prefix); idx >= 0 && len(msg) > idx+len(prefix) {
		return msg[idx+len(prefix):]
	}
	return "invalid input"
}

// Request/Response types

type SuccessResponse struct {
	Success bool `json:"success"`
}

type AddItemResponse struct {
	Success bool            `json:"success"`
	ID      entities.ItemID `json:"id"`
}

type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
