package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/outbound"

	"go.uber.org/zap"
)

// Cliente de rajada para validar o gateway de ponta a ponta: dispara N
// requisições passando pelo Registry de saída, então um 429 do gateway vira
// backoff adaptativo do próprio cliente.
func main() {
	url := flag.String("url", "http://localhost:8080/", "URL alvo (gateway)")
	n := flag.Int("n", 50, "total de requisições")
	rate := flag.Float64("rate", 20, "taxa inicial (req/s)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	registry := outbound.NewRegistry(logger)
	if err := registry.AddService("gateway", *rate, outbound.ServiceOptions{Adaptive: true}); err != nil {
		logger.Fatal("registry error", zap.Error(err))
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var okCount, throttled, failed int
	start := time.Now()
	for i := 0; i < *n; i++ {
		err := registry.Do(context.Background(), "gateway", func() error {
			resp, err := client.Get(*url)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("%w: retry-after=%s", domain.ErrRateLimited, resp.Header.Get("Retry-After"))
			}
			if resp.StatusCode >= 400 {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		})

		switch {
		case err == nil:
			okCount++
		case errors.Is(err, domain.ErrRateLimited):
			throttled++
		default:
			failed++
		}
	}

	stats := registry.AllStats()["gateway"]
	logger.Info("burst finished",
		zap.Int("ok", okCount),
		zap.Int("throttled", throttled),
		zap.Int("failed", failed),
		zap.Float64("final_rate", stats.Rate),
		zap.Duration("elapsed", time.Since(start)),
	)
}
