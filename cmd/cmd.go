// Package cmd provides CLI commands for the chatbot service.
//
// Commands:
//   - serve: HTTP API server (chat, rate-limit, health endpoints)
//   - migrate: run pending database migrations and exit
//   - ingest: load knowledge documents into the vector store
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the chatbot CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "ingest":
		return runIngest()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("copines-chatbot - dual-persona RAG chatbot API")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  copines-chatbot serve [addr]    Start HTTP API server (default: 0.0.0.0:8000)")
	fmt.Println("  copines-chatbot migrate         Run database migrations and exit")
	fmt.Println("  copines-chatbot ingest <file>   Ingest knowledge documents (JSON Lines)")
	fmt.Println("  copines-chatbot --version       Show version information")
	fmt.Println("  copines-chatbot --help          Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENROUTER_API_KEY  Required: OpenRouter API key (chat models)")
	fmt.Println("  OPENAI_API_KEY      Required: OpenAI API key (embeddings)")
	fmt.Println("  COHERE_API_KEY      Required: Cohere API key (reranking)")
	fmt.Println("  DATABASE_URL        Optional: PostgreSQL connection URL")
	fmt.Println("  DEBUG               Optional: Enable debug logging")
}
