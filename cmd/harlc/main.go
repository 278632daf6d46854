package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hartools/har-lolicode/internal/analyze"
	"github.com/hartools/har-lolicode/internal/config"
	"github.com/hartools/har-lolicode/internal/progress"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: harlc <analyze|serve> [flags]")
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	harPath := fs.String("har", "", "path to the HAR file to analyze")
	configPath := fs.String("config", "", "path to har-lolicode.yaml (optional)")
	outPath := fs.String("out", "", "write the rendered script here instead of stdout")
	fs.Parse(args)

	if *harPath == "" {
		log.Fatal("analyze: -har is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("analyze: failed to load config: %v", err)
	}

	har, err := os.ReadFile(*harPath)
	if err != nil {
		log.Fatalf("analyze: failed to read HAR: %v", err)
	}

	result, err := analyze.Analyze(context.Background(), har, cfg, nil)
	if err != nil {
		if pe, ok := err.(*analyze.PipelineError); ok {
			log.Fatalf("analyze: %s: %s", pe.Kind, pe.Message)
		}
		log.Fatalf("analyze: %v", err)
	}

	for _, w := range result.Warnings {
		log.Printf("warning: %s", w.Message)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(result.Script), 0o644); err != nil {
			log.Fatalf("analyze: failed to write script: %v", err)
		}
		log.Printf("wrote %s (%d bytes, %d critical-path entries, %d tokens)",
			*outPath, len(result.Script), result.Metrics.CriticalPathLen, result.Metrics.TokensDetected)
		return
	}

	fmt.Print(result.Script)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8088", "listen address")
	configPath := fs.String("config", "", "path to har-lolicode.yaml (optional)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("serve: failed to load config: %v", err)
	}

	hub := progress.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		har, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := analyze.Analyze(r.Context(), har, cfg, hub)
		if err != nil {
			if pe, ok := err.(*analyze.PipelineError); ok {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{"error": string(pe.Kind), "message": pe.Message})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("harlc serve listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("serve: shutting down")
	server.Shutdown(context.Background())
}
