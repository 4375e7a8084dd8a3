package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/audit"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/metrics"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/pagination"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/signals"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/validation"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/watchlist"
)

// IdempotencyHeader carries the caller's retry key when the body does not.
const IdempotencyHeader = "Idempotency-Key"

// analyzeHandler scores a full signal payload.
func (s *Server) analyzeHandler(c *gin.Context) {
	var in engine.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be a JSON object with wallet, protocol, market and metadata",
		})
		return
	}
	if in.Metadata.IdempotencyKey == "" {
		in.Metadata.IdempotencyKey = c.GetHeader(IdempotencyHeader)
	}
	s.analyze(c, in)
}

// analyze runs one analysis and records it. A stored result is replayed
// when the idempotency key has been seen before.
func (s *Server) analyze(c *gin.Context, in engine.Input) {
	ctx := c.Request.Context()
	log := logging.L(ctx)

	if in.Metadata.RequestID == "" {
		in.Metadata.RequestID = logging.RequestID(ctx)
	}

	if key := in.Metadata.IdempotencyKey; key != "" {
		unlock, err := s.keys.Lock(ctx, key)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "request_cancelled",
				"message": "Request cancelled while waiting on a retry with the same idempotency key",
			})
			return
		}
		defer unlock()

		rec, err := s.audit.FindByIdempotencyKey(ctx, key)
		switch {
		case err == nil && rec.WalletAddress != audit.NormalizeAddress(in.Wallet.Address):
			keyConflict(c, rec.WalletAddress)
			return
		case err == nil:
			c.Header("Idempotent-Replayed", "true")
			c.JSON(http.StatusOK, rec.Result)
			return
		case !errors.Is(err, audit.ErrNotFound):
			log.Error("idempotency lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to check idempotency key",
			})
			return
		}
	}

	res, err := s.engine.Analyze(ctx, in)
	if err != nil {
		var verr *signals.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "Request validation failed",
				"details": verr.Fields,
			})
			return
		}
		log.Error("analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Analysis failed",
		})
		return
	}

	replay, err := s.record(ctx, res)
	if errors.Is(err, errKeyConflict) {
		keyConflict(c, replay.WalletAddress)
		return
	}
	if replay != nil {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, replay.Result)
		return
	}

	c.JSON(http.StatusOK, res)
}

// errKeyConflict reports an idempotency key already bound to another wallet.
var errKeyConflict = errors.New("idempotency key bound to another wallet")

// keyConflict rejects a key reused for a different wallet.
func keyConflict(c *gin.Context, boundTo string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "idempotency_key_conflict",
		"message": "Idempotency key was already used for wallet " + signals.ShortAddress(boundTo),
	})
}

// record writes the audit trail, stamps the monitored list and publishes
// the result. The record of a concurrent request that won the idempotency
// race is returned so the caller sees one answer per key; when that winner
// was for another wallet it comes with errKeyConflict.
func (s *Server) record(ctx context.Context, res *engine.AnalysisResult) (*audit.Record, error) {
	log := logging.L(ctx)

	err := s.audit.Record(ctx, audit.NewRecord(res, s.now()))
	switch {
	case errors.Is(err, audit.ErrDuplicateKey):
		if rec, ferr := s.audit.FindByIdempotencyKey(ctx, res.Details.IdempotencyKey); ferr == nil {
			if rec.WalletAddress != audit.NormalizeAddress(res.WalletAddress) {
				return rec, errKeyConflict
			}
			return rec, nil
		}
	case err != nil:
		metrics.AnalysisErrorsTotal.WithLabelValues("audit_write").Inc()
		log.Error("failed to record analysis", "error", err, "wallet", signals.ShortAddress(res.WalletAddress))
	}

	err = s.watchlist.RecordAnalysis(ctx, res.WalletAddress, res.Decision, res.RiskScore, s.now())
	if err != nil && !errors.Is(err, watchlist.ErrNotMonitored) {
		log.Warn("failed to update monitored wallet", "error", err)
	}

	s.realtimeHub.BroadcastAnalysis(res)
	return nil, nil
}

// walletHistoryHandler returns the audit trail for one wallet, newest
// first. Pages continue from the opaque nextCursor of the previous page.
func (s *Server) walletHistoryHandler(c *gin.Context) {
	address := audit.NormalizeAddress(c.Param("address"))

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			queryError(c, "limit", "must be a non-negative integer")
			return
		}
		limit = n
	}
	limit = audit.ClampLimit(limit)

	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		queryError(c, "cursor", "is not a cursor returned by this endpoint")
		return
	}

	records, err := s.audit.ListByWallet(c.Request.Context(), address, limit+1, after)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list analyses", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list analyses",
		})
		return
	}
	records, next := pagination.Trim(records, limit, audit.Key)
	if records == nil {
		records = []*audit.Record{}
	}

	resp := gin.H{
		"walletAddress": address,
		"analyses":      records,
		"count":         len(records),
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func queryError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"message": "Request validation failed",
		"details": validation.ValidationErrors{{Field: field, Message: msg}},
	})
}

// policyHandler reports the effective decision policy.
func (s *Server) policyHandler(c *gin.Context) {
	cfg := s.engine.Config()
	c.JSON(http.StatusOK, gin.H{
		"weights": cfg.Weights,
		"ambiguousBand": gin.H{
			"low":  cfg.AmbiguousLow,
			"high": cfg.AmbiguousHigh,
		},
		"reasoning": gin.H{
			"enabled":       cfg.ReasoningEnabled && s.engine.Backend() != "",
			"backend":       s.engine.Backend(),
			"timeoutMs":     cfg.ReasoningTimeout.Milliseconds(),
			"maxAdjustment": cfg.MaxAdjustment,
			"maxInFlight":   cfg.MaxInFlight,
		},
		"customRules": len(cfg.CustomRules),
	})
}

// -----------------------------------------------------------------------------
// Monitored wallets
// -----------------------------------------------------------------------------

type monitorRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
	AddedBy string `json:"addedBy"`
}

func (s *Server) listMonitoredHandler(c *gin.Context) {
	wallets, err := s.watchlist.List(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list monitored wallets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list monitored wallets",
		})
		return
	}
	if wallets == nil {
		wallets = []*watchlist.Wallet{}
	}
	c.JSON(http.StatusOK, gin.H{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

func (s *Server) addMonitoredHandler(c *gin.Context) {
	var req monitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be a JSON object",
		})
		return
	}

	errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.ValidAddress("address", req.Address),
		validation.MaxLength("label", req.Label, 128),
		validation.MaxLength("addedBy", req.AddedBy, 256),
	)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Request validation failed",
			"details": errs,
		})
		return
	}

	ctx := c.Request.Context()
	w, err := watchlist.New(req.Address, req.Label, req.AddedBy, s.now())
	if err == nil {
		err = s.watchlist.Add(ctx, w)
	}
	switch {
	case errors.Is(err, watchlist.ErrAlreadyMonitored):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_monitored",
			"message": "Wallet is already monitored",
		})
		return
	case err != nil:
		logging.L(ctx).Error("failed to add monitored wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add monitored wallet",
		})
		return
	}

	metrics.MonitoredWallets.Inc()
	s.realtimeHub.BroadcastWatchlist(w.Address, true, w)
	logging.L(ctx).Info("wallet monitored", "wallet", signals.ShortAddress(w.Address), "added_by", w.AddedBy)
	c.JSON(http.StatusCreated, gin.H{"wallet": w})
}

func (s *Server) removeMonitoredHandler(c *gin.Context) {
	ctx := c.Request.Context()
	address := audit.NormalizeAddress(c.Param("address"))

	err := s.watchlist.Remove(ctx, address)
	switch {
	case errors.Is(err, watchlist.ErrNotMonitored):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Wallet is not monitored",
		})
		return
	case err != nil:
		logging.L(ctx).Error("failed to remove monitored wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to remove monitored wallet",
		})
		return
	}

	metrics.MonitoredWallets.Dec()
	s.realtimeHub.BroadcastWatchlist(address, false, nil)
	c.Status(http.StatusNoContent)
}
