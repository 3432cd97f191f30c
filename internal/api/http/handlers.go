package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/async"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/evaluator"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/capability"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/connection"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/shared/utils"
)

// Evaluator is the facade the handlers drive
type Evaluator interface {
	EvaluateEntry(ctx context.Context, script string, arguments []args.Argument, entry string, settings sandbox.Settings) *async.Future[string]
	EvaluateModule(ctx context.Context, script string, module []byte, arguments []args.Argument, entry string, settings sandbox.Settings) *async.Future[string]
	Capabilities(ctx context.Context) *async.Future[capability.Snapshot]
	Shutdown() *async.Future[struct{}]
	State() connection.State
}

// Handlers serves the evaluation API
type Handlers struct {
	eval    Evaluator
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates handlers; a nil logger discards output
func NewHandlers(eval Evaluator, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{eval: eval, logger: logger, started: time.Now()}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "scriptbox",
		"version": "0.1.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"sandbox": gin.H{"state": h.eval.State().String()},
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// Evaluate runs one script
func (h *Handlers) Evaluate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, http.StatusRequestEntityTooLarge, "invalid_request", err)
		return
	}

	req, err := decodeEvaluateRequest(body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, sandbox.KindInvalidRequest.String(), err)
		return
	}
	arguments, err := req.arguments()
	if err != nil {
		h.fail(c, http.StatusBadRequest, sandbox.KindInvalidRequest.String(), err)
		return
	}
	module, err := req.module()
	if err != nil {
		h.fail(c, http.StatusBadRequest, sandbox.KindInvalidRequest.String(), err)
		return
	}

	entry := req.Entry
	if entry == "" {
		entry = evaluator.DefaultEntryPoint
	}

	ctx := c.Request.Context()
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	var future *async.Future[string]
	if module != nil {
		h.logger.Debug("Evaluating with module",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("module", utils.Fingerprint(module)),
			zap.Int("module_bytes", len(module)),
		)
		future = h.eval.EvaluateModule(ctx, req.Script, module, arguments, entry, req.sandboxSettings())
	} else {
		future = h.eval.EvaluateEntry(ctx, req.Script, arguments, entry, req.sandboxSettings())
	}

	// The future always completes after ctx ends, so wait on it rather than ctx
	result, err := future.Await(context.Background())
	if err != nil {
		h.failEvaluation(c, err)
		return
	}

	raw := []byte(result)
	if result == "" {
		raw = []byte("null")
	}
	c.JSON(http.StatusOK, EvaluateResponse{
		Result:    raw,
		RequestID: middleware.GetRequestID(c),
	})
}

// Capabilities reports what the sandbox supports
func (h *Handlers) Capabilities(c *gin.Context) {
	snap, err := h.eval.Capabilities(c.Request.Context()).Await(c.Request.Context())
	if err != nil {
		h.failEvaluation(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Shutdown closes the sandbox connection; the next request reconnects
func (h *Handlers) Shutdown(c *gin.Context) {
	if _, err := h.eval.Shutdown().Await(c.Request.Context()); err != nil {
		h.fail(c, http.StatusInternalServerError, sandbox.KindUnknown.String(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "shutdown", "sandbox": gin.H{"state": h.eval.State().String()}})
}

func (h *Handlers) failEvaluation(c *gin.Context, err error) {
	kind := sandbox.KindOf(err)
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Evaluation failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}

	name := kind.String()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		name = "timeout"
	case errors.Is(err, context.Canceled):
		name = "cancelled"
	}
	h.fail(c, status, name, err)
}

func (h *Handlers) fail(c *gin.Context, status int, kind string, err error) {
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: middleware.GetRequestID(c),
	})
}

// StatusFor maps an evaluation error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, sandbox.ErrHeapCeilingRejected):
		return http.StatusUnprocessableEntity
	}

	switch sandbox.KindOf(err) {
	case sandbox.KindInvalidRequest:
		return http.StatusBadRequest
	case sandbox.KindUnsupportedCapability, sandbox.KindScriptExecutionFailed:
		return http.StatusUnprocessableEntity
	case sandbox.KindIsolateCreationFailed, sandbox.KindModuleTransferFailed:
		return http.StatusInternalServerError
	case sandbox.KindSandboxUnavailable, sandbox.KindSandboxConnectionLost:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
