// Command navbrain is a small demo/REPL shell around the Navigation Brain,
// in the shape of the teacher's cmd/agsh/main.go: godotenv env loading,
// provider construction, a readline REPL plus a one-shot CLI form. CLI
// argument parsing and environment configuration are explicitly the
// external collaborator's job (spec.md §6 "Configuration (consumed, not
// owned)") — this binary is that collaborator for manual exercising of
// navigate_to / get_current_node / launch_app.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v2/shared"

	"github.com/haricheung/navbrain/internal/actionexec"
	"github.com/haricheung/navbrain/internal/brain"
	"github.com/haricheung/navbrain/internal/graph"
	"github.com/haricheung/navbrain/internal/llmprovider"
	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/shadowdom"
	"github.com/haricheung/navbrain/internal/vlm"
)

func main() {
	_ = godotenv.Load(".env")

	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "navbrain")
	_ = os.MkdirAll(cacheDir, 0o755)

	if f, err := os.OpenFile(filepath.Join(cacheDir, "debug.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
		defer f.Close()
	}

	orch, err := buildOrchestrator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	vlmAdapter := vlm.NewAdapter(orch)
	ocr := perception.NullOCR{}
	shadowBuild := shadowdom.NewBuilder(ocr, vlmAdapter, nil)
	injector := actionexec.NewInjector()
	executor := actionexec.New(injector, ocr, nil, nil)

	graphPath := os.Getenv("NAVBRAIN_GRAPH_PATH")
	if graphPath == "" {
		graphPath = filepath.Join("data", "brain", "navigation.json")
	}
	g, err := graph.Load(graphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading graph: %v\n", err)
		os.Exit(1)
	}

	b := brain.New(g, vlmAdapter, executor, shadowBuild, ocr, nil)
	if err := b.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: initializing brain: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if len(os.Args) > 1 && os.Args[1] != "" {
		runOneShot(ctx, b, strings.Join(os.Args[1:], " "))
		cancel()
		return
	}
	runREPL(ctx, b, cancel)
}

// buildOrchestrator constructs an llmprovider.Orchestrator from environment
// variables, the way the teacher's llm.NewTier reads {TIER}_{API_KEY,
// BASE_URL,MODEL} env vars. Only ANTHROPIC_API_KEY is required; OpenAI,
// Gemini, and a local Ollama-compatible endpoint are optionally layered in
// as the fast/vision tiers, falling back to the default provider per
// spec.md §4.C4 "Fallback" when unconfigured.
func buildOrchestrator() (*llmprovider.Orchestrator, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("navbrain: ANTHROPIC_API_KEY is required")
	}
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	def := llmprovider.NewAnthropicProvider(apiKey, anthropic.Model(model), "default")

	var fast llmprovider.Provider
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		fastModel := os.Getenv("OPENAI_FAST_MODEL")
		if fastModel == "" {
			fastModel = "gpt-4o-mini"
		}
		fast = llmprovider.NewOpenAIProvider(key, shared.ChatModel(fastModel), "fast")
	}

	var vision llmprovider.Provider
	switch {
	case os.Getenv("NAVBRAIN_LOCAL_VISION_URL") != "":
		baseURL := os.Getenv("NAVBRAIN_LOCAL_VISION_URL")
		visionModel := os.Getenv("NAVBRAIN_LOCAL_VISION_MODEL")
		vision = llmprovider.NewOllamaProvider(baseURL, visionModel, "vision")
	case os.Getenv("GEMINI_API_KEY") != "":
		geminiModel := os.Getenv("GEMINI_MODEL")
		if geminiModel == "" {
			geminiModel = "gemini-2.0-flash"
		}
		gemini, err := llmprovider.NewGeminiProvider(context.Background(), os.Getenv("GEMINI_API_KEY"), geminiModel, "vision")
		if err != nil {
			return nil, fmt.Errorf("navbrain: gemini provider: %w", err)
		}
		vision = gemini
	default:
		vision = def
	}

	return llmprovider.NewOrchestrator(def, fast, vision), nil
}

func runOneShot(ctx context.Context, b *brain.Brain, target string) {
	ok, current, message := b.NavigateTo(ctx, target)
	printNavigateResult(ok, current, message)
}

func runREPL(ctx context.Context, b *brain.Brain, cancel context.CancelFunc) {
	rl, err := readline.New("navbrain> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: readline: %v\n", err)
		return
	}
	defer rl.Close()

	fmt.Println("navbrain REPL — commands: navigate <target>, node, launch <app>, quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			cancel()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case line == "quit" || line == "exit":
			cancel()
			return
		case line == "node":
			result := b.GetCurrentNode()
			fmt.Printf("current: %+v\npaths: %d\nstats: %+v\n", result.CurrentNode, len(result.AvailablePaths), result.GraphStats)
		case strings.HasPrefix(line, "navigate "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "navigate "))
			ok, current, message := b.NavigateTo(ctx, target)
			printNavigateResult(ok, current, message)
		case strings.HasPrefix(line, "launch "):
			appName := strings.TrimSpace(strings.TrimPrefix(line, "launch "))
			ok, err := b.LaunchApp(ctx, appName)
			if err != nil {
				fmt.Printf("launch failed: %v\n", err)
			} else {
				fmt.Printf("launch success: %v\n", ok)
			}
		default:
			fmt.Println("unknown command")
		}
	}
}

func printNavigateResult(ok bool, current any, message string) {
	if ok {
		log.Printf("[navbrain] navigate succeeded: %s", message)
	} else {
		log.Printf("[navbrain] navigate failed: %s", message)
	}
	fmt.Printf("success=%v current=%v message=%s\n", ok, current, message)
}
