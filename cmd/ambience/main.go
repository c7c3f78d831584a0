package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/satindergrewal/ambience/internal/arrangement"
	"github.com/satindergrewal/ambience/internal/audio"
	"github.com/satindergrewal/ambience/internal/capture"
	"github.com/satindergrewal/ambience/internal/config"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/ollama"
	"github.com/satindergrewal/ambience/internal/session"
	"github.com/satindergrewal/ambience/internal/stream"
	"github.com/satindergrewal/ambience/internal/voice"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("ambience starting up...")

	catalog := maqam.NewCatalog()
	if cfg.ScalesFile != "" {
		if err := catalog.LoadYAML(cfg.ScalesFile); err != nil {
			log.Fatalf("Scales file: %v", err)
		}
	}
	log.Printf("Scales: %v", catalog.IDs())

	bank := loadBank(cfg.AssetsDir)
	log.Printf("Voices (%s): %v", bank.Mode(), bank.Loaded())

	// Render the bank in real time and fan the frames out
	pipeline := audio.NewPipeline(bank)
	go pipeline.Run(ctx)

	broadcaster := stream.NewBroadcaster()

	if cfg.Speaker {
		spk := stream.NewSpeaker(broadcaster)
		if err := spk.Start(); err != nil {
			log.Printf("Local speaker unavailable: %v", err)
		} else {
			defer spk.Close()
			log.Println("Playing on the local speaker")
		}
	}

	feed := session.NewFeed(512)
	mgr := session.NewManager(session.Config{
		StopGuard:      cfg.StopGuard,
		CaptureTimeout: cfg.CaptureTimeout,
		Tick:           cfg.Tick,
		Mode:           bank.Mode(),
	},
		arrangement.NewController(catalog),
		bank,
		func() session.Recorder { return capture.NewRecorder(broadcaster) },
		capture.NewExporter(cfg.ExportDir, cfg.ExportScope),
		feed,
	)

	go func() {
		broadcaster.Run(ctx, pipeline.Frames())
		if ctx.Err() == nil {
			mgr.Fail(errors.New("audio output stopped"))
		}
	}()

	// Ollama LLM (optional, names finished takes)
	if cfg.OllamaURL != "" {
		client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
		if client.WaitForReady(readyCtx) {
			mgr.Titler = titler(ollama.NewTitleGenerator(client), catalog)
			log.Printf("Ollama connected: %s (LLM take titles enabled)", cfg.OllamaModel)
		} else {
			log.Println("Ollama not available, using generated titles")
		}
		readyCancel()
	} else {
		log.Println("Ollama not configured (set OLLAMA_URL to enable LLM titles)")
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, "maqam-ambience")

	a := &api{
		defaults:   cfg,
		catalog:    catalog,
		mgr:        mgr,
		feed:       feed,
		setVolume:  bank.SetMasterVolume,
		setEffects: bank.SetEffects,
		listeners:  func() map[string]int {
			return map[string]int{
				"broadcast": broadcaster.ListenerCount(),
				"webrtc":    webrtcHandler.PeerCount(),
			}
		},
	}
	go a.follow(ctx)

	mux := http.NewServeMux()
	a.routes(mux)
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, "maqam ambience"))
	mux.Handle("/offer", webrtcHandler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		mgr.Stop()
		webrtcHandler.Close()
		server.Close()
	}()

	log.Printf("ambience live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// loadBank prefers recorded samples and falls back to synthesis.
func loadBank(dir string) *voice.Bank {
	if dir == "" {
		return voice.NewSynthBank()
	}
	bank, err := voice.LoadBank(dir)
	if err != nil {
		log.Printf("Sample bank unavailable, synthesizing voices: %v", err)
		return voice.NewSynthBank()
	}
	return bank
}

func titler(gen *ollama.TitleGenerator, catalog *maqam.Catalog) session.Titler {
	return func(ctx context.Context, take capture.Artifact) (string, error) {
		s := catalog.Lookup(take.Scale)
		seen := map[string]bool{}
		var voices []string
		for _, t := range take.Events {
			if v := string(t.Voice); !seen[v] {
				seen[v] = true
				voices = append(voices, v)
			}
		}
		return gen.GenerateTitle(ctx, ollama.Take{
			Scale:     s.Name,
			Character: s.Character,
			BPM:       take.BPM,
			Duration:  take.Duration,
			Voices:    voices,
		})
	}
}
