package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CheckoutSession is a hosted-checkout session created by a merchant backend.
type CheckoutSession struct {
	SessionKey string
	TranID     string
	ValID      string
	Amount     string
	Currency   string
	SuccessURL string
	FailURL    string
	CancelURL  string
	IPNURL     string
	CreatedAt  time.Time
	Completed  bool
	Outcome    string
}

// SessionResponse mirrors the gateway's session creation payload.
type SessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason,omitempty"`
	SessionKey     string `json:"sessionkey,omitempty"`
	GatewayPageURL string `json:"GatewayPageURL,omitempty"`
}

// ValidationResponse mirrors the validator API payload.
type ValidationResponse struct {
	Status      string `json:"status"`
	TranID      string `json:"tran_id"`
	ValID       string `json:"val_id"`
	Amount      string `json:"amount"`
	StoreAmount string `json:"store_amount"`
	Currency    string `json:"currency"`
	BankTranID  string `json:"bank_tran_id"`
	CardType    string `json:"card_type"`
	CardIssuer  string `json:"card_issuer"`
	TranDate    string `json:"tran_date"`
}

// MockGateway simulates a hosted-checkout payment gateway: it issues
// checkout sessions, fires the merchant callbacks when a session completes
// and answers validator lookups for completed payments.
type MockGateway struct {
	storeID       string
	storePassword string
	baseURL       string
	validRate     float64
	rng           *rand.Rand

	mu          sync.Mutex
	sessions    map[string]*CheckoutSession
	validations map[string]*CheckoutSession
}

func NewMockGateway(storeID, storePassword, baseURL string, validRate float64) *MockGateway {
	return &MockGateway{
		storeID:       storeID,
		storePassword: storePassword,
		baseURL:       strings.TrimRight(baseURL, "/"),
		validRate:     validRate,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:      make(map[string]*CheckoutSession),
		validations:   make(map[string]*CheckoutSession),
	}
}

func (g *MockGateway) createSession(form url.Values) *SessionResponse {
	if form.Get("store_id") != g.storeID || form.Get("store_passwd") != g.storePassword {
		return &SessionResponse{Status: "FAILED", FailedReason: "Store Credential Error Or Store is De-active"}
	}
	if form.Get("tran_id") == "" || form.Get("total_amount") == "" {
		return &SessionResponse{Status: "FAILED", FailedReason: "Information not complete"}
	}

	session := &CheckoutSession{
		SessionKey: strings.ReplaceAll(uuid.New().String(), "-", ""),
		TranID:     form.Get("tran_id"),
		ValID:      "VAL-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:16],
		Amount:     form.Get("total_amount"),
		Currency:   form.Get("currency"),
		SuccessURL: form.Get("success_url"),
		FailURL:    form.Get("fail_url"),
		CancelURL:  form.Get("cancel_url"),
		IPNURL:     form.Get("ipn_url"),
		CreatedAt:  time.Now(),
	}

	g.mu.Lock()
	g.sessions[session.SessionKey] = session
	g.mu.Unlock()

	log.Info().
		Str("tran_id", session.TranID).
		Str("session_key", session.SessionKey).
		Str("amount", session.Amount).
		Msg("Checkout session created")

	return &SessionResponse{
		Status:         "SUCCESS",
		SessionKey:     session.SessionKey,
		GatewayPageURL: g.baseURL + "/EasyCheckOut/" + session.SessionKey,
	}
}

// complete finishes a session with the given outcome and fires the matching
// merchant callback. Success also marks the payment validatable and posts
// the IPN.
func (g *MockGateway) complete(sessionKey, outcome string) (*CheckoutSession, error) {
	g.mu.Lock()
	session, ok := g.sessions[sessionKey]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("unknown session %q", sessionKey)
	}
	if session.Completed {
		g.mu.Unlock()
		return nil, fmt.Errorf("session %q already completed with outcome %s", sessionKey, session.Outcome)
	}
	session.Completed = true
	session.Outcome = outcome
	if outcome == "success" {
		g.validations[session.ValID] = session
	}
	g.mu.Unlock()

	switch outcome {
	case "success":
		g.postCallback(session.SuccessURL, url.Values{
			"tran_id": {session.TranID},
			"val_id":  {session.ValID},
			"amount":  {session.Amount},
			"status":  {"VALID"},
		})
		g.postCallback(session.IPNURL, url.Values{
			"tran_id": {session.TranID},
			"val_id":  {session.ValID},
			"amount":  {session.Amount},
			"status":  {"VALID"},
		})
	case "fail":
		g.postCallback(session.FailURL, url.Values{
			"tran_id": {session.TranID},
			"amount":  {session.Amount},
			"status":  {"FAILED"},
			"error":   {"Insufficient funds"},
		})
	case "cancel":
		g.postCallback(session.CancelURL, url.Values{
			"tran_id": {session.TranID},
			"amount":  {session.Amount},
			"status":  {"CANCELLED"},
		})
	default:
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}

	log.Info().
		Str("tran_id", session.TranID).
		Str("outcome", outcome).
		Msg("Checkout session completed")

	return session, nil
}

func (g *MockGateway) postCallback(target string, form url.Values) {
	if target == "" {
		return
	}
	resp, err := http.PostForm(target, form)
	if err != nil {
		log.Warn().Str("url", target).Err(err).Msg("Callback delivery failed")
		return
	}
	defer resp.Body.Close()
	log.Info().Str("url", target).Int("status", resp.StatusCode).Msg("Callback delivered")
}

func (g *MockGateway) validate(valID string) *ValidationResponse {
	g.mu.Lock()
	session, ok := g.validations[valID]
	g.mu.Unlock()

	if !ok || g.rng.Float64() >= g.validRate {
		return &ValidationResponse{Status: "INVALID_TRANSACTION", ValID: valID}
	}

	return &ValidationResponse{
		Status:      "VALID",
		TranID:      session.TranID,
		ValID:       session.ValID,
		Amount:      session.Amount,
		StoreAmount: session.Amount,
		Currency:    session.Currency,
		BankTranID:  "BANK-" + session.SessionKey[:10],
		CardType:    "VISA-Dutch Bangla",
		CardIssuer:  "STANDARD CHARTERED BANK",
		TranDate:    session.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// Handler struct holds the mock gateway and routes
type Handler struct {
	gateway *MockGateway
}

func NewHandler(gateway *MockGateway) *Handler {
	return &Handler{gateway: gateway}
}

// CreateSession handles the session creation API the merchant backend calls.
func (h *Handler) CreateSession(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form body"})
		return
	}

	resp := h.gateway.createSession(c.Request.PostForm)
	c.JSON(http.StatusOK, resp)
}

// Checkout shows what a hosted checkout page would offer for a session.
func (h *Handler) Checkout(c *gin.Context) {
	sessionKey := c.Param("sessionkey")

	h.gateway.mu.Lock()
	session, ok := h.gateway.sessions[sessionKey]
	h.gateway.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tran_id":  session.TranID,
		"amount":   session.Amount,
		"currency": session.Currency,
		"actions": gin.H{
			"success": h.gateway.baseURL + "/EasyCheckOut/" + sessionKey + "/success",
			"fail":    h.gateway.baseURL + "/EasyCheckOut/" + sessionKey + "/fail",
			"cancel":  h.gateway.baseURL + "/EasyCheckOut/" + sessionKey + "/cancel",
		},
	})
}

// CompleteCheckout finishes a session with the outcome in the path, standing
// in for the cardholder pressing pay, decline or cancel.
func (h *Handler) CompleteCheckout(c *gin.Context) {
	sessionKey := c.Param("sessionkey")
	outcome := c.Param("outcome")

	session, err := h.gateway.complete(sessionKey, outcome)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tran_id": session.TranID,
		"outcome": outcome,
		"val_id":  session.ValID,
	})
}

// Validate handles the validator API the merchant backend re-checks
// payments against.
func (h *Handler) Validate(c *gin.Context) {
	valID := c.Query("val_id")
	if valID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "val_id is required"})
		return
	}

	c.JSON(http.StatusOK, h.gateway.validate(valID))
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"sessions":  len(h.gateway.sessions),
		"timestamp": time.Now(),
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	router.POST("/gwprocess/v4/api.php", handler.CreateSession)
	router.GET("/validator/api/validationserverAPI.php", handler.Validate)
	router.GET("/EasyCheckOut/:sessionkey", handler.Checkout)
	router.POST("/EasyCheckOut/:sessionkey/:outcome", handler.CompleteCheckout)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	storeID := getEnv("STORE_ID", "teststore")
	storePassword := getEnv("STORE_PASSWORD", "teststore@ssl")
	baseURL := getEnv("BASE_URL", "http://localhost:"+port)
	validRate := getEnvFloat("VALID_RATE", 1)

	log.Info().
		Str("port", port).
		Str("store_id", storeID).
		Float64("valid_rate", validRate).
		Msg("Starting Mock Payment Gateway")

	gw := NewMockGateway(storeID, storePassword, baseURL, validRate)
	handler := NewHandler(gw)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
