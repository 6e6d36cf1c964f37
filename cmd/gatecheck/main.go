package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/line-gemini-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/line-gemini-relay/internal/config"
	"github.com/wolfman30/line-gemini-relay/internal/gate"
	"github.com/wolfman30/line-gemini-relay/internal/llm"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	questions := os.Args[1:]
	if len(questions) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gatecheck \"question\" [\"question\" ...]")
		os.Exit(2)
	}

	cfg := appconfig.Load()
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}
	logger := logging.New("error")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		ModelID:     cfg.GeminiModelID,
		Temperature: cfg.GeminiTemperature,
	})
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}
	defer client.Close()

	provider, err := bootstrap.BuildContextProvider(cfg, logger)
	if err != nil {
		log.Fatalf("context: %v", err)
	}
	g := gate.New(client, provider, cfg.ConfidenceThreshold, logger)

	fmt.Printf("model=%s threshold=%d\n", client.ModelID(), g.Threshold())
	failed := false
	for _, q := range questions {
		start := time.Now()
		assessment, err := g.Assess(ctx, q)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			fmt.Printf("ERROR  %-8s %q: %v\n", elapsed, q, err)
			failed = true
			continue
		}
		decision := "SUPPRESS"
		if assessment.Confident() {
			decision = "ANSWER"
		}
		score := fmt.Sprintf("%d", assessment.Score)
		if !assessment.Parsed {
			score = fmt.Sprintf("? (raw %q)", assessment.Raw)
		}
		fmt.Printf("%-8s %-8s score=%s %q\n", decision, elapsed, score, q)
	}
	if failed {
		os.Exit(1)
	}
}
