package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/logger"
)

// Invoker runs a named command with JSON arguments. *commands.Handler satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Bridge exposes the command surface to the UI shell over loopback HTTP
type Bridge struct {
	engine  *gin.Engine
	invoker Invoker
	secret  []byte
	log     *slog.Logger
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewBridge creates a bridge. Requests must carry a token signed with secret.
func NewBridge(invoker Invoker, secret []byte, log *slog.Logger) *Bridge {
	b := &Bridge{
		engine:  gin.New(),
		invoker: invoker,
		secret:  secret,
		log:     log,
	}
	b.engine.Use(gin.Recovery(), b.requestLogger())
	b.setupRoutes()
	return b
}

func (b *Bridge) setupRoutes() {
	r := b.engine

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/invoke/:command", b.TokenAuthMiddleware(), b.handleInvoke)
}

// Handler returns the bridge as an http.Handler
func (b *Bridge) Handler() http.Handler {
	return b.engine
}

// TokenAuthMiddleware rejects requests without a valid bearer token
func (b *Bridge) TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			b.abort(c, http.StatusUnauthorized, errors.New(errors.ErrUnauthorized, "bridge", "missing bearer token"))
			return
		}

		if err := VerifyToken(b.secret, tokenString); err != nil {
			b.abort(c, http.StatusUnauthorized, errors.Wrap(err, errors.ErrUnauthorized, "bridge", "invalid token"))
			return
		}

		c.Next()
	}
}

func (b *Bridge) handleInvoke(c *gin.Context) {
	command := c.Param("command")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		b.abort(c, http.StatusBadRequest, errors.Wrap(err, errors.ErrInvalidInput, command, "failed to read request body"))
		return
	}

	result, err := b.invoker.Invoke(c.Request.Context(), command, body)
	if err != nil {
		b.abort(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (b *Bridge) abort(c *gin.Context, status int, err error) {
	body := errorBody{Code: errors.ErrInternal, Message: err.Error()}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body = errorBody{Code: appErr.Code, Message: appErr.Message, Suggestion: appErr.Suggestion}
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("command failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrDuplicateID, errors.ErrConflict:
		return http.StatusConflict
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	}
	if stderrors.Is(err, context.Canceled) {
		return 499
	}
	return http.StatusInternalServerError
}

// RequestIDHeader carries the id every bridge log line for a request shares
const RequestIDHeader = "X-Request-ID"

// requestLogger tags each request with an id and hands a logger carrying it
// down the request context, so registry writes log under the same id.
func (b *Bridge) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		log := b.log.With("request_id", id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		log.Debug("bridge request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// CheckLoopback refuses addresses that would expose the bridge beyond this machine
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidInput, "bridge", "invalid listen address "+addr)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return errors.New(errors.ErrInvalidInput, "bridge",
		fmt.Sprintf("refusing to listen on non-loopback address %s", addr)).
		WithSuggestion("Use 127.0.0.1:<port>")
}

// Run serves on addr until ctx is canceled
func (b *Bridge) Run(ctx context.Context, addr string) error {
	if err := CheckLoopback(addr); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           b.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		b.log.Info("bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
