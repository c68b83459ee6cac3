// Package main implements the lanea CLI: the command surface over the
// Lane A knowledge governance core.
//
// Command implementations are split across cmd_*.go files:
//   - cmd_staleness.go   - staleness evaluation
//   - cmd_committee.go   - committee runs (repo, all, integration, qa)
//   - cmd_sufficiency.go - sufficiency propose/approve/reject, version bumps
//   - cmd_phase.go       - phase kickoffs, close, confirm-v1, prereq refresh
//   - cmd_meeting.go     - meeting lifecycle plus change requests
//   - cmd_decision.go    - decision packet listing and answering
//   - cmd_work.go        - work status checkpoints
//   - cmd_gate.go        - delivery gate
//   - cmd_doctor.go      - read-only environment health check
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lanea/internal/committee"
	"lanea/internal/config"
	"lanea/internal/decision"
	"lanea/internal/evidence"
	"lanea/internal/gate"
	"lanea/internal/gitio"
	"lanea/internal/logging"
	"lanea/internal/meeting"
	"lanea/internal/oracle"
	"lanea/internal/phase"
	"lanea/internal/staleness"
	"lanea/internal/sufficiency"
	"lanea/internal/types"
	"lanea/internal/workstatus"
)

// Exit codes: 0 ok, 1 expected refusal (gate, stale, invalid output),
// 2 fatal error.
const (
	exitOK      = 0
	exitRefused = 1
	exitFatal   = 2
)

var (
	flagOpsRoot       string
	flagKnowledgeRoot string
	flagForce         bool
	flagLLMProfile    string
)

var rootCmd = &cobra.Command{
	Use:   "lanea",
	Short: "Lane A knowledge governance core",
	Long: `lanea maintains a versioned, evidence-backed body of knowledge about a
set of source repositories and gates downstream delivery work on whether
that knowledge is fresh, complete, and human-approved.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app carries the wired core for one command invocation.
type app struct {
	paths     config.Paths
	cfg       config.LaneConfig
	registry  *types.RepoRegistry
	git       *gitio.Runner
	stale     *staleness.Engine
	catalog   *evidence.Catalog
	decisions *decision.Store
	ledger    *sufficiency.Ledger
	gate      *gate.Gate
	phase     *phase.Machine
	crs       *meeting.ChangeRequests
	work      *workstatus.Store
}

// buildApp wires everything except the oracle, which only committee
// commands need.
func buildApp() (*app, error) {
	opsRoot := flagOpsRoot
	if opsRoot == "" {
		var err error
		opsRoot, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	paths := config.NewPaths(opsRoot, flagKnowledgeRoot)

	cfg, err := config.LoadLaneConfig(paths)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(paths.LogsDir(), logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	registry, err := config.LoadRepoRegistry(paths)
	if err != nil {
		return nil, err
	}

	git := gitio.NewRunner(cfg.GitTimeoutDuration())
	engine := staleness.NewEngine(paths, registry, git, cfg.StaleThreshold(), time.Now)
	decisions := decision.NewStore(paths, time.Now)
	ledger := sufficiency.NewLedger(paths, registry, engine, decisions, time.Now)

	return &app{
		paths:     paths,
		cfg:       cfg,
		registry:  registry,
		git:       git,
		stale:     engine,
		catalog:   evidence.NewCatalog(paths, registry, git),
		decisions: decisions,
		ledger:    ledger,
		gate:      gate.NewGate(paths, engine, ledger, time.Now),
		phase:     phase.NewMachine(paths, ledger, time.Now),
		crs:       meeting.NewChangeRequests(paths, time.Now),
		work:      workstatus.NewStore(paths, time.Now),
	}, nil
}

// orchestrator wires the committee stack, including the oracle.
func (a *app) orchestrator() (*committee.Orchestrator, error) {
	profiles, err := config.LoadLLMProfiles(a.paths)
	if err != nil {
		return nil, err
	}
	profile, err := profiles.Resolve(flagLLMProfile)
	if err != nil {
		return nil, err
	}
	client, err := oracle.NewHTTPClient(profile)
	if err != nil {
		return nil, err
	}

	orch := committee.NewOrchestrator(a.paths, a.registry, a.stale, a.catalog, a.decisions, client, a.cfg.CommitteePool, time.Now)
	orch.ForceOverride = flagForce
	return orch, nil
}

func (a *app) meetings() (*meeting.Manager, error) {
	orch, err := a.orchestrator()
	if err != nil {
		return nil, err
	}
	mgr := meeting.NewManager(a.paths, a.registry, a.stale, orch, a.ledger, a.decisions, a.crs, a.cfg.MaxQuestions, time.Now)
	mgr.ForceOverride = flagForce
	return mgr, nil
}

// printJSON renders a result value for callers.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "render result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// exitFor maps a structured result onto the exit code contract.
func exitFor(ok bool) error {
	if ok {
		return nil
	}
	return errRefused
}

var errRefused = fmt.Errorf("refused")

func init() {
	rootCmd.PersistentFlags().StringVar(&flagOpsRoot, "ops-root", "", "project ops root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagKnowledgeRoot, "knowledge-root", "", "knowledge repo root (default: <ops-root>/knowledge)")
	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "override stale/sufficiency refusals (audited)")
	rootCmd.PersistentFlags().StringVar(&flagLLMProfile, "llm-profile", "", "LLM profile name from config/LLM_PROFILES.json")

	rootCmd.AddCommand(
		stalenessCmd,
		committeeCmd,
		sufficiencyCmd,
		phaseCmd,
		meetingCmd,
		decisionCmd,
		workCmd,
		gateCmd,
		doctorCmd,
		crCmd,
	)
}

func main() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		if err == errRefused {
			os.Exit(exitRefused)
		}
		fmt.Fprintf(os.Stderr, "lanea: %v\n", err)
		os.Exit(exitFatal)
	}
}
