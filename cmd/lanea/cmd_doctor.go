package main

import (
	"os"

	"github.com/spf13/cobra"

	"lanea/internal/config"
	"lanea/internal/fsio"
)

// doctorReport is the read-only environment check result.
type doctorReport struct {
	OpsRoot        string            `json:"ops_root"`
	KnowledgeRoot  string            `json:"knowledge_root"`
	RegistryOK     bool              `json:"registry_ok"`
	RegistryError  string            `json:"registry_error,omitempty"`
	ActiveRepos    []string          `json:"active_repos"`
	LLMProfilesOK  bool              `json:"llm_profiles_ok"`
	RepoCoverage   map[string]string `json:"repo_coverage"`
	PhaseFile      bool              `json:"phase_file"`
	EventsDir      bool              `json:"events_dir"`
	DecisionsDir   bool              `json:"decisions_dir"`
	CurrentVersion string            `json:"current_version,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Read-only health check of the ops and knowledge layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		opsRoot := flagOpsRoot
		if opsRoot == "" {
			var err error
			opsRoot, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		paths := config.NewPaths(opsRoot, flagKnowledgeRoot)

		report := doctorReport{
			OpsRoot:       paths.OpsRoot,
			KnowledgeRoot: paths.KnowledgeRoot,
			RepoCoverage:  map[string]string{},
			PhaseFile:     fsio.Exists(paths.PhaseFile()),
			EventsDir:     fsio.Exists(paths.EventSegmentsDir()),
			DecisionsDir:  fsio.Exists(paths.DecisionsDir()),
		}

		registry, err := config.LoadRepoRegistry(paths)
		if err != nil {
			report.RegistryError = err.Error()
		} else {
			report.RegistryOK = true
			report.ActiveRepos = config.ActiveRepoIDs(registry)
			for _, repoID := range report.ActiveRepos {
				switch {
				case !fsio.Exists(paths.RepoIndexFile(repoID)):
					report.RepoCoverage[repoID] = "missing repo_index.json"
				case !fsio.Exists(paths.ScanFile(repoID)):
					report.RepoCoverage[repoID] = "missing scan.json"
				case !fsio.Exists(paths.EvidenceRefsFile(repoID)):
					report.RepoCoverage[repoID] = "missing evidence_refs.jsonl"
				default:
					report.RepoCoverage[repoID] = "ok"
				}
			}
		}

		if _, err := config.LoadLLMProfiles(paths); err == nil {
			report.LLMProfilesOK = true
		}

		var vf struct {
			CurrentVersion string `json:"current_version"`
		}
		if fsio.Exists(paths.KnowledgeVersionFile()) {
			if err := fsio.ReadJSON(paths.KnowledgeVersionFile(), &vf); err == nil {
				report.CurrentVersion = vf.CurrentVersion
			}
		} else {
			report.CurrentVersion = "v0"
		}

		printJSON(report)
		if !report.RegistryOK {
			return errRefused
		}
		for _, state := range report.RepoCoverage {
			if state != "ok" {
				return errRefused
			}
		}
		return nil
	},
}
