package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore"
	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/ops"
)

// Records is the part of the store the HTTP surface uses.
type Records interface {
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)
	ListRecords(ctx context.Context, collection string, params ops.SearchParams, info *models.RequestInfo) (*recordstore.ListResult, error)
	ViewRecord(ctx context.Context, collection, id string, info *models.RequestInfo) (*models.Record, error)
	UpdateRecord(ctx context.Context, collection, id string, patch map[string]any, info *models.RequestInfo) (*models.Record, error)
}

type Handler struct {
	records Records
	auth    AuthConfig
	logger  *zap.SugaredLogger
}

func NewHandler(records Records, auth AuthConfig) *Handler {
	return &Handler{
		records: records,
		auth:    auth,
		logger:  zap.S().Named("records_handler"),
	}
}

type listResponse struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Items      []map[string]any `json:"items"`
}

// Health reports that the server is up.
// (GET /health)
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRecords returns one page of records matching filter.
// (GET /collections/:collection/records)
func (h *Handler) ListRecords(c *gin.Context) {
	params, err := searchParams(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	info := requestInfo(c, nil)
	result, err := h.records.ListRecords(c.Request.Context(), c.Param("collection"), params, info)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]map[string]any, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, export(r, info))
	}
	c.JSON(http.StatusOK, listResponse{
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
		Items:      items,
	})
}

// ViewRecord returns a single record.
// (GET /collections/:collection/records/:id)
func (h *Handler) ViewRecord(c *gin.Context) {
	info := requestInfo(c, nil)
	record, err := h.records.ViewRecord(c.Request.Context(), c.Param("collection"), c.Param("id"), info)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, export(record, info))
}

// UpdateRecord applies a JSON patch to a record.
// (PATCH /collections/:collection/records/:id)
func (h *Handler) UpdateRecord(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	info := requestInfo(c, patch)
	record, err := h.records.UpdateRecord(c.Request.Context(), c.Param("collection"), c.Param("id"), patch, info)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, export(record, info))
}

func searchParams(c *gin.Context) (ops.SearchParams, error) {
	params := ops.SearchParams{
		Page:    1,
		PerPage: ops.DefaultPerPage,
		Filter:  c.Query("filter"),
		Sort:    c.Query("sort"),
	}

	intParam := func(name string, dst *int) error {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &recordstore.Error{Kind: recordstore.ErrValidation, Message: "invalid integer", Field: name, Cause: err}
		}
		*dst = n
		return nil
	}
	if err := intParam("page", &params.Page); err != nil {
		return params, err
	}
	if err := intParam("perPage", &params.PerPage); err != nil {
		return params, err
	}

	if raw, ok := c.GetQuery("skipTotal"); ok && raw != "" {
		skip, err := strconv.ParseBool(raw)
		if err != nil {
			return params, &recordstore.Error{Kind: recordstore.ErrValidation, Message: "invalid boolean", Field: "skipTotal", Cause: err}
		}
		params.SkipTotal = skip
	}
	return params, nil
}

// export hides hidden fields from everyone but superusers.
func export(r *models.Record, info *models.RequestInfo) map[string]any {
	if !info.HasSuperuserAccess() {
		return r.PublicExport()
	}
	out := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		out[k] = v
	}
	out["collectionId"] = r.Collection.ID
	out["collectionName"] = r.Collection.Name
	return out
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var e *recordstore.Error
	if !errors.As(err, &e) {
		h.logger.Errorw("request failed", "path", c.FullPath(), "error", err)
		abort(c, http.StatusInternalServerError, "something went wrong", nil)
		return
	}

	var data map[string]any
	if e.Field != "" {
		detail := e.Message
		if e.Cause != nil {
			detail = e.Cause.Error()
		}
		data = map[string]any{e.Field: detail}
	}

	switch e.Kind {
	case recordstore.ErrQueryParse, recordstore.ErrQueryRejected, recordstore.ErrValidation:
		abort(c, http.StatusBadRequest, e.Message, data)
	case recordstore.ErrForbidden:
		abort(c, http.StatusForbidden, e.Message, nil)
	case recordstore.ErrNotFound:
		abort(c, http.StatusNotFound, e.Message, nil)
	default:
		h.logger.Errorw("request failed", "path", c.FullPath(), "kind", e.Kind, "error", err)
		abort(c, http.StatusInternalServerError, "something went wrong", nil)
	}
}

func abort(c *gin.Context, status int, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	c.AbortWithStatusJSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}
