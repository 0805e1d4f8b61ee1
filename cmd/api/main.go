package main

import (
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/easypay/payment-gateway/internal/config"
	"github.com/easypay/payment-gateway/internal/gateway"
	"github.com/easypay/payment-gateway/internal/handlers"
	"github.com/easypay/payment-gateway/internal/lock"
	"github.com/easypay/payment-gateway/internal/repository"
	"github.com/easypay/payment-gateway/internal/services"
	xhttp "github.com/easypay/payment-gateway/pkg/http"
	"github.com/easypay/payment-gateway/pkg/logger"
	"github.com/easypay/payment-gateway/pkg/pg"
	"github.com/easypay/payment-gateway/pkg/prom"
	"github.com/easypay/payment-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 30))
	s.Use(xhttp.CORSMiddleware("*"))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	// single-instance deployments run without redis and fall back to the
	// in-process locker
	var locker lock.KeyLocker = lock.NewMutexLocker()
	if config.Get().RedisAddr != "" {
		redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{config.Get().RedisAddr},
			ClientName: "default",
			DB:         config.Get().RedisDatabase,
			Username:   config.Get().RedisUsername,
			Password:   config.Get().RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
		locker = lock.NewRedisLocker(redisAdap, lock.DefaultRedisLockerConfig())
	}

	gatewayClient, err := gateway.NewClient(&gateway.Config{
		StoreID:       config.Get().GatewayStoreID,
		StorePassword: config.Get().GatewayStorePassword,
		Live:          config.Get().GatewayIsLive,
		Timeout:       config.Get().GatewayTimeout,
	})
	if err != nil {
		logger.Error("failed creating gateway client", "error", err)
		return
	}

	transactionRepo := repository.NewTransactionRepository(db)

	// services
	callbackURLs := services.NewCallbackURLs(config.Get().PublicBaseURL)
	paymentService := services.NewPaymentService(transactionRepo, gatewayClient, locker, callbackURLs, config.Get().Currency)
	healthService := services.NewHealthService(db)

	// v1 handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, config.Get().ClientRedirectURL)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterPaymentRoutes(g, paymentHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	hostname, _ := os.Hostname()
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed creating metrics", "error", err)
	}
	if config.Get().AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, os.Kill)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	logger.Info("payment gateway started", "addr", config.Get().HttpListenAddr, "version", version)

	select {
	case <-c:
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
