package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-mentor/lumen/agent"
	"github.com/lumen-mentor/lumen/agent/terminal"
	"github.com/lumen-mentor/lumen/config"
	"github.com/lumen-mentor/lumen/llm"
	"github.com/lumen-mentor/lumen/logging"
	"github.com/lumen-mentor/lumen/plan"
	"github.com/lumen-mentor/lumen/session"
	"github.com/lumen-mentor/lumen/store"
	"github.com/lumen-mentor/lumen/telemetry"
	"github.com/lumen-mentor/lumen/tools"
)

func main() {
	modeFlag := flag.String("m", "", "Operating mode: 'mentor' or 'operator'")
	userFlag := flag.String("u", "", "User id (defaults to 'local')")
	sessionFlag := flag.String("s", "", "Session id to create or use")
	resumeFlag := flag.String("r", "", "Resume a session by id")
	toolVerbosityFlag := flag.String("tool-verbosity", "none", "Tool verbosity level: 'none', 'info', or 'all'")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating data directory: %+v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.DataDir, cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %+v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	st, err := store.Open(filepath.Join(cfg.DataDir, "lumen.db"), store.NewSealer(cfg.ContentKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %+v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	userID := *userFlag
	if userID == "" {
		userID = "local"
	}

	var opMode agent.Mode
	switch *modeFlag {
	case "", "mentor":
		opMode = agent.ModeMentor
	case "operator":
		opMode = agent.ModeOperator
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'mentor' or 'operator'.\n", *modeFlag)
		os.Exit(1)
	}

	var sess *session.Session
	if *resumeFlag != "" {
		sess, err = st.LoadSession(*resumeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", *resumeFlag, err)
			os.Exit(1)
		}
		if sess.Mode != "" {
			opMode = agent.Mode(sess.Mode)
		}
		fmt.Printf("Resuming session: %s\n", sess.ID)
	} else {
		id := *sessionFlag
		if id == "" {
			id = defaultSessionID()
		}
		sess = session.New(id, userID, string(opMode))
		if err := st.CreateSession(sess); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", id, err)
			os.Exit(1)
		}
		fmt.Printf("Starting new session: %s\n", id)
	}

	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	client, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.Provider, err)
		os.Exit(1)
	}

	gate := plan.NewGate(st, sess.UserID)
	registry := buildRegistry(cfg, st, gate, sess.UserID, opMode)

	var auth tools.Authorizer
	if opMode == agent.ModeOperator {
		auth = gate
	}

	reviewer := telemetry.NewReviewer(st, 8)
	defer reviewer.Close()

	lumenAgent := agent.New(cfg, sess, client, registry, auth, st, opMode, verbosity)
	lumenAgent.Reviewer = reviewer

	initialPrompt := strings.Join(flag.Args(), " ")
	fmt.Println("Lumen is ready. Type your prompt.")
	term := terminal.New(lumenAgent, gate)
	if err := term.Run(context.Background(), initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg *config.Config) (llm.Client, error) {
	ctx := context.Background()
	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(ctx, cfg.Model)
	case "openai":
		return llm.NewOpenAIClient(ctx, cfg.Model)
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.Model)
	case "bedrock":
		return llm.NewBedrockClient(ctx, cfg.Model)
	default:
		return &llm.Scripted{}, nil
	}
}

// buildRegistry wires the closed tool set. The mentor tools are always
// registered; operator mode adds the privileged capabilities on top.
func buildRegistry(cfg *config.Config, st *store.Store, gate *plan.Gate, userID string, mode agent.Mode) *tools.Registry {
	r := tools.NewRegistry()
	r.MustRegister(&tools.MentorStatusTool{Store: st, UserID: userID})
	r.MustRegister(&tools.RecordInsightTool{Store: st, UserID: userID})
	r.MustRegister(&tools.SetHabitTool{Store: st, UserID: userID})
	r.MustRegister(&tools.TickHabitTool{Store: st, UserID: userID})
	r.MustRegister(&tools.AdvanceStageTool{Store: st, UserID: userID})
	r.MustRegister(&tools.IlluminateDomainTool{})
	r.MustRegister(&tools.SwitchViewTool{})
	r.MustRegister(&tools.EraseProgressTool{Store: st, UserID: userID})
	r.MustRegister(&tools.ProposePlanTool{Proposer: gate})

	if mode == agent.ModeOperator {
		r.MustRegister(&tools.ReadFileTool{FSAccess: &cfg.FilesystemAccess})
		r.MustRegister(&tools.ListFilesTool{FSAccess: &cfg.FilesystemAccess})
		r.MustRegister(&tools.WriteFileTool{FSAccess: &cfg.FilesystemAccess})
		r.MustRegister(&tools.ExecuteCommandTool{AllowedCommands: cfg.AllowedCommands})
		r.MustRegister(&tools.RunQueryTool{Store: st})
	}
	return r
}

func defaultSessionID() string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", timestamp, uuid.NewString()[:8])
}
