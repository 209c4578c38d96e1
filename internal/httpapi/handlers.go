package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nounforge/entitykernel/internal/cdc"
	"github.com/nounforge/entitykernel/internal/dispatch/integrations"
	"github.com/nounforge/entitykernel/internal/dispatch/subscriptions"
	"github.com/nounforge/entitykernel/internal/entitystore"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/kernel"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/pointers"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/timetravel"
)

type api struct {
	mgr *kernel.Manager
}

func (a *api) kernelFor(c *gin.Context) (*kernel.Kernel, bool) {
	tenantID := strings.TrimSpace(c.Param("tenantId"))
	k, err := a.mgr.Get(tenantID)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	return k, true
}

func (a *api) healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// --- Schema registry (C3) ---

type defineNounRequest struct {
	Singular      string                           `json:"singular"`
	Plural        string                           `json:"plural"`
	Slug          string                           `json:"slug"`
	Fields        map[string]model.FieldDescriptor `json:"fields"`
	CustomVerbs   []string                         `json:"customVerbs"`
	DisabledVerbs []string                         `json:"disabledVerbs"`
}

func (a *api) defineNoun(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	name := strings.TrimSpace(c.Param("noun"))
	var req defineNounRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	noun, err := k.Schema.DefineNoun(c.Request.Context(), name, schema.Definition{
		Singular:      req.Singular,
		Plural:        req.Plural,
		Slug:          req.Slug,
		Fields:        req.Fields,
		CustomVerbs:   req.CustomVerbs,
		DisabledVerbs: req.DisabledVerbs,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, noun, nil)
}

func (a *api) listNouns(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	nouns, err := k.Schema.ListNouns(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, nouns, nil)
}

func (a *api) getNoun(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	noun, err := k.Schema.GetNoun(c.Request.Context(), strings.TrimSpace(c.Param("noun")))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, noun, nil)
}

func (a *api) listVerbs(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	verbs, err := k.Schema.ListVerbs(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, verbs, nil)
}

// --- Entity store (C4) ---

func (a *api) createEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var payload model.Document
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}
	entity, ev, err := k.Entities.Create(c.Request.Context(), strings.TrimSpace(c.Param("type")), payload, c.Query("id"), c.Query("context"))
	if err != nil {
		respondErr(c, err)
		return
	}
	k.Dispatch(c.Request.Context(), ev)
	respondOK(c, http.StatusCreated, entity, nil)
}

func (a *api) getEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	entity, err := k.Entities.Get(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, entity, nil)
}

func (a *api) listEntities(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}

	var filter map[string]any
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			badRequest(c, "invalid filter: "+err.Error())
			return
		}
	}
	sortField, sortDir := "", 0
	if raw := c.Query("sort"); raw != "" {
		var sort map[string]int
		if err := json.Unmarshal([]byte(raw), &sort); err != nil {
			badRequest(c, "invalid sort: "+err.Error())
			return
		}
		for f, d := range sort {
			sortField, sortDir = f, d
			break
		}
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	result, err := k.Entities.List(c.Request.Context(), strings.TrimSpace(c.Param("type")), entitystore.ListParams{
		Filter:    filter,
		SortField: sortField,
		SortDir:   sortDir,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result.Entities, gin.H{
		"total": result.Total, "limit": result.Limit, "offset": result.Offset, "hasMore": result.HasMore,
	})
}

func (a *api) updateEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var patch model.Document
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	var expected *int
	if raw := c.GetHeader("If-Match"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "If-Match must be an integer version")
			return
		}
		expected = pointers.Int(v)
	}
	entity, ev, err := k.Entities.Update(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")), patch, expected)
	if err != nil {
		respondErr(c, err)
		return
	}
	k.Dispatch(c.Request.Context(), ev)
	respondOK(c, http.StatusOK, entity, nil)
}

func (a *api) deleteEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	entity, ev, err := k.Entities.Delete(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	k.Dispatch(c.Request.Context(), ev)
	respondOK(c, http.StatusOK, entity, nil)
}

// --- Verb executor (C6) ---

func (a *api) executeVerb(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var payload model.Document
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	entity, ev, err := k.Verbs.Execute(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")), strings.TrimSpace(c.Param("verb")), payload)
	if err != nil {
		respondErr(c, err)
		return
	}
	k.Dispatch(c.Request.Context(), ev)
	respondOK(c, http.StatusOK, entity, nil)
}

// --- Event log (C5) ---

func (a *api) queryEvents(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	p := eventlog.QueryParams{
		Type:     c.Query("type"),
		EntityID: c.Query("entityId"),
		Verb:     c.Query("verb"),
	}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "since must be RFC3339")
			return
		}
		p.Since = pointers.Ptr(t)
	}
	if raw := c.Query("limit"); raw != "" {
		p.Limit, _ = strconv.Atoi(raw)
	}
	events, err := k.Events.Query(c.Request.Context(), p)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, events, nil)
}

// --- Time-travel engine (C7) ---

func (a *api) reconstructEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	p := timetravel.ReconstructParams{}
	if raw := c.Query("atVersion"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "atVersion must be an integer")
			return
		}
		p.AtVersion = pointers.Int(v)
	}
	if raw := c.Query("asOf"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "asOf must be RFC3339")
			return
		}
		p.AsOf = pointers.Ptr(t)
	}
	entity, err := k.TimeTravel.Reconstruct(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")), p)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, entity, nil)
}

func (a *api) diffEntity(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	from, err := strconv.Atoi(c.Query("from"))
	if err != nil {
		badRequest(c, "from must be an integer")
		return
	}
	to, err := strconv.Atoi(c.Query("to"))
	if err != nil {
		badRequest(c, "to must be an integer")
		return
	}
	changes, events, err := k.TimeTravel.Diff(c.Request.Context(), strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("id")), from, to)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"changes": changes, "events": events}, nil)
}

// --- Subscription dispatcher (C8) ---

type registerSubscriptionRequest struct {
	Pattern  string  `json:"pattern"`
	Mode     string  `json:"mode"`
	Endpoint string  `json:"endpoint"`
	Secret   *string `json:"secret"`
}

func (a *api) registerSubscription(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var req registerSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sub, err := subscriptions.Register(c.Request.Context(), k.Engine.DB, req.Pattern, req.Mode, req.Endpoint, req.Secret)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, sub, nil)
}

func (a *api) listSubscriptions(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var subs []model.Subscription
	if err := k.Engine.DB.WithContext(c.Request.Context()).Find(&subs).Error; err != nil {
		respondErr(c, kernelerr.Wrap(kernelerr.CodeInternal, "httpapi.list_subscriptions", err))
		return
	}
	respondOK(c, http.StatusOK, subs, nil)
}

// --- Integration dispatcher (C9) ---

type registerHookRequest struct {
	EntityType string            `json:"entityType"`
	Verb       string            `json:"verb"`
	Service    model.ServiceName `json:"service"`
	Method     string            `json:"method"`
}

func (a *api) registerHook(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	var req registerHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	hook, err := integrations.Register(c.Request.Context(), k.Engine.DB, req.EntityType, req.Verb, req.Service, req.Method)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, hook, nil)
}

func (a *api) listHooks(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	hooks, err := integrations.ListHooks(c.Request.Context(), k.Engine.DB)
	if err != nil {
		respondErr(c, kernelerr.Wrap(kernelerr.CodeInternal, "httpapi.list_hooks", err))
		return
	}
	respondOK(c, http.StatusOK, hooks, nil)
}

// --- CDC stream (C10) ---

func (a *api) pollCDC(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	p := cdc.Params{}
	if raw := c.Query("types"); raw != "" {
		p.Types = strings.Split(raw, ",")
	}
	if raw := c.Query("verbs"); raw != "" {
		p.Verbs = strings.Split(raw, ",")
	}
	if raw := c.Query("since"); raw != "" {
		p.Since = []string{raw}
	}
	if raw := c.Query("limit"); raw != "" {
		p.Limit, _ = strconv.Atoi(raw)
	}
	batch, err := k.Poll(c.Request.Context(), p)
	if err != nil {
		respondErr(c, kernelerr.Wrap(kernelerr.CodeInternal, "httpapi.poll_cdc", err))
		return
	}
	respondOK(c, http.StatusOK, batch.Events, gin.H{"cursor": batch.Cursor, "heartbeat": batch.Heartbeat})
}

// --- Tenant kernel lifecycle (C11) ---

func (a *api) describeTenant(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	meta, err := k.Describe(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, meta, nil)
}

func (a *api) deactivateTenant(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	if err := k.Deactivate(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"status": "deactivated"}, nil)
}

func (a *api) reactivateTenant(c *gin.Context) {
	k, ok := a.kernelFor(c)
	if !ok {
		return
	}
	if err := k.Reactivate(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"status": "active"}, nil)
}
