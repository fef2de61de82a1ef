// Package server exposes the payment facilitator over HTTP: the payer-facing
// payment endpoint speaking the 402 protocol and an admin API for managing
// payment jobs.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/job"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/queue"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402/encoding"
)

// Payment protocol headers.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

var (
	jobsCreatedCounter       = metrics.GetOrCreateCounter(`payment_jobs_total{event="created"}`)
	paymentsSettledCounter   = metrics.GetOrCreateCounter(`payment_submissions_total{result="settled"}`)
	paymentsFailedCounter    = metrics.GetOrCreateCounter(`payment_submissions_total{result="failed"}`)
	paymentsRejectedCounter  = metrics.GetOrCreateCounter(`payment_submissions_total{result="rejected"}`)
	paymentsMalformedCounter = metrics.GetOrCreateCounter(`payment_submissions_total{result="malformed"}`)
)

// EngineInfo is the read-only facilitator identity exposed on /supported.
type EngineInfo interface {
	Network() string
	SignerAddress() string
}

// Options configures a Server.
type Options struct {
	Registry *job.Registry
	Engine   EngineInfo
	Queue    *queue.Queue
	Logger   *slog.Logger
}

// Server wires the registry into HTTP handlers.
type Server struct {
	registry *job.Registry
	engine   EngineInfo
	logger   *slog.Logger
}

// New creates a Server and registers the queue depth gauge.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Queue != nil {
		q := opts.Queue
		metrics.GetOrCreateGauge(`submission_queue_depth`, func() float64 {
			return float64(q.Depth())
		})
	}
	return &Server{
		registry: opts.Registry,
		engine:   opts.Engine,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/supported", s.supported)

	r.GET("/orders/:orderId/payment", s.payment)

	jobs := r.Group("/jobs")
	jobs.POST("", s.createJob)
	jobs.GET("", s.listJobs)
	jobs.POST("/sweep", s.sweep)
	jobs.GET("/order/:orderId", s.getJobByOrder)
	jobs.GET("/:id", s.getJob)
	jobs.POST("/:id/payload", s.submitPayload)
	jobs.POST("/:id/confirm", s.confirm)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) supported(c *gin.Context) {
	resp := gin.H{
		"x402Version": x402.X402Version,
		"kinds": []gin.H{{
			"scheme":  x402.SchemeExact,
			"network": s.engine.Network(),
		}},
	}
	if addr := s.engine.SignerAddress(); addr != "" {
		resp["feePayer"] = addr
	}
	c.JSON(http.StatusOK, resp)
}

// payment is the payer-facing endpoint. Without an X-PAYMENT header it
// returns the 402 terms for the order; with one it drives the proof through
// the registry and answers 200 plus X-PAYMENT-RESPONSE on settlement.
func (s *Server) payment(c *gin.Context) {
	orderID := c.Param("orderId")
	j, err := s.registry.GetJobByOrderID(orderID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// An expired or failed job has released the order slot; re-create so
	// the terms carry a live job id instead of bricking the order.
	if j.Status == job.StatusExpired || j.Status == job.StatusFailed {
		fresh, err := s.registry.CreateJob(job.CreateParams{
			OrderID:                    orderID,
			AmountUSD:                  j.AmountUSD,
			Description:                j.Description,
			Resource:                   j.Resource,
			PayTo:                      j.Requirements.PayTo,
			RequiresManualConfirmation: j.RequiresManualConfirmation,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}
		j = fresh
	}

	header := c.GetHeader(HeaderPayment)
	if header == "" {
		if j.SettleResult != nil && (j.Status == job.StatusSettled || j.Status == job.StatusCompleted) {
			s.writeSettled(c, j)
			return
		}
		c.JSON(http.StatusPaymentRequired, s.paymentRequired(j, "Payment required"))
		return
	}

	payload, err := encoding.DecodePayment(header)
	if err != nil {
		paymentsMalformedCounter.Inc()
		s.logger.Warn("malformed payment header", "orderId", orderID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"x402Version": x402.X402Version,
			"error":       x402.ErrMalformedHeader.Error(),
		})
		return
	}

	result, err := s.registry.SubmitPayload(c.Request.Context(), j.ID, payload)
	if err != nil {
		paymentsRejectedCounter.Inc()
		s.writeError(c, err)
		return
	}

	switch result.Status {
	case job.StatusSettled, job.StatusCompleted:
		paymentsSettledCounter.Inc()
		s.writeSettled(c, result)
	case job.StatusFailed:
		paymentsFailedCounter.Inc()
		s.logger.Warn("payment rejected", "orderId", orderID, "reason", result.Error)
		// The failed job released the order slot; issue fresh terms so the
		// payer can retry.
		fresh, err := s.registry.CreateJob(job.CreateParams{
			OrderID:                    orderID,
			AmountUSD:                  result.AmountUSD,
			Description:                result.Description,
			Resource:                   result.Resource,
			PayTo:                      result.Requirements.PayTo,
			RequiresManualConfirmation: result.RequiresManualConfirmation,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusPaymentRequired, s.paymentRequired(fresh, result.Error))
	default:
		c.JSON(http.StatusOK, result)
	}
}

// writeSettled answers 200 with the settlement result in both the body and
// the X-PAYMENT-RESPONSE header.
func (s *Server) writeSettled(c *gin.Context, j *job.PaymentJob) {
	encoded, err := encoding.EncodeSettlement(*j.SettleResult)
	if err != nil {
		s.logger.Error("encoding settlement header", "jobId", j.ID, "error", err)
	} else {
		c.Header(HeaderPaymentResponse, encoded)
	}
	c.JSON(http.StatusOK, j.SettleResult)
}

// paymentRequired builds the 402 body for a job, listing the crypto terms
// and the fiat alternative when one is configured.
func (s *Server) paymentRequired(j *job.PaymentJob, message string) x402.PaymentRequired {
	req := j.Requirements
	accepts := []x402.PaymentOption{{Method: x402.MethodCrypto, Crypto: &req}}
	if fiat := s.registry.FiatOption(j); fiat != nil {
		accepts = append(accepts, x402.PaymentOption{Method: x402.MethodFiat, Fiat: fiat})
	}
	return x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       message,
		Resource:    j.Resource,
		Accepts:     accepts,
		JobID:       j.ID,
	}
}

type createJobRequest struct {
	OrderID                    string  `json:"orderId" binding:"required"`
	AmountUSD                  float64 `json:"amountUsd" binding:"required"`
	Description                string  `json:"description"`
	Resource                   string  `json:"resource"`
	PayTo                      string  `json:"payTo"`
	RequiresManualConfirmation bool    `json:"requiresManualConfirmation"`
}

func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := s.registry.CreateJob(job.CreateParams{
		OrderID:                    req.OrderID,
		AmountUSD:                  req.AmountUSD,
		Description:                req.Description,
		Resource:                   req.Resource,
		PayTo:                      req.PayTo,
		RequiresManualConfirmation: req.RequiresManualConfirmation,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	jobsCreatedCounter.Inc()
	c.JSON(http.StatusCreated, j)
}

func (s *Server) getJob(c *gin.Context) {
	j, err := s.registry.GetJob(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) getJobByOrder(c *gin.Context) {
	j, err := s.registry.GetJobByOrderID(c.Param("orderId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) listJobs(c *gin.Context) {
	status := job.Status(c.Query("status"))
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}
	jobs := s.registry.ListByStatus(status)
	if jobs == nil {
		jobs = []*job.PaymentJob{}
	}
	c.JSON(http.StatusOK, jobs)
}

// submitPayload is the admin-side proof submission, taking the payload as
// plain JSON instead of the base64 header form.
func (s *Server) submitPayload(c *gin.Context) {
	var payload x402.PaymentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.registry.SubmitPayload(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		paymentsRejectedCounter.Inc()
		s.writeError(c, err)
		return
	}
	if result.Status == job.StatusFailed {
		paymentsFailedCounter.Inc()
	} else if result.SettleResult != nil {
		paymentsSettledCounter.Inc()
	}
	c.JSON(http.StatusOK, result)
}

type confirmRequest struct {
	ConfirmedBy string `json:"confirmedBy" binding:"required"`
}

func (s *Server) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := s.registry.ConfirmManually(c.Param("id"), req.ConfirmedBy)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) sweep(c *gin.Context) {
	removed := s.registry.SweepExpired()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// writeError maps a PaymentError to its HTTP status. Anything else is a 500.
func (s *Server) writeError(c *gin.Context, err error) {
	var perr *x402.PaymentError
	if !errors.As(err, &perr) {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"code": perr.Code, "error": perr.Message}
	if perr.JobID != "" {
		body["jobId"] = perr.JobID
	}
	c.JSON(statusFor(perr.Code), body)
}

func statusFor(code x402.ErrorCode) int {
	switch code {
	case x402.ErrCodeValidation, x402.ErrCodeProtocolMismatch:
		return http.StatusBadRequest
	case x402.ErrCodeNotFound:
		return http.StatusNotFound
	case x402.ErrCodeConflict:
		return http.StatusConflict
	case x402.ErrCodeExpired:
		return http.StatusGone
	case x402.ErrCodeVerificationFailed:
		return http.StatusPaymentRequired
	case x402.ErrCodeSettlementFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
