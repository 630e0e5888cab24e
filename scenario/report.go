package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Balance is one account's underlying balance at a snapshot.
type Balance struct {
	Account string `json:"account" yaml:"account"`
	Address string `json:"address" yaml:"address"`
	Amount  string `json:"amount" yaml:"amount"`
	Raw     string `json:"raw" yaml:"raw"`
}

// Snapshot is a labelled set of balances.
type Snapshot struct {
	Label    string    `json:"label" yaml:"label"`
	Balances []Balance `json:"balances" yaml:"balances"`
}

// RoundResult summarises one victim's loss. Amounts are in token units.
type RoundResult struct {
	Round           int    `json:"round" yaml:"round"`
	Victim          string `json:"victim" yaml:"victim"`
	VictimDeposit   string `json:"victim_deposit" yaml:"victim_deposit"`
	VictimShares    string `json:"victim_shares" yaml:"victim_shares"`
	AttackerBalance string `json:"attacker_balance" yaml:"attacker_balance"`
	Stolen          string `json:"stolen" yaml:"stolen"`
}

// Report is the record of one run.
type Report struct {
	RunID             string        `json:"run_id" yaml:"run_id"`
	Backend           string        `json:"backend" yaml:"backend"`
	Comptroller       string        `json:"comptroller" yaml:"comptroller"`
	Admin             string        `json:"admin" yaml:"admin"`
	InterestRateModel string        `json:"interest_rate_model" yaml:"interest_rate_model"`
	Token             string        `json:"token" yaml:"token"`
	Market            string        `json:"market" yaml:"market"`
	StartedAt         time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time     `json:"finished_at" yaml:"finished_at"`
	Snapshots         []Snapshot    `json:"snapshots" yaml:"snapshots"`
	Rounds            []RoundResult `json:"rounds" yaml:"rounds"`
}

// Snapshot returns the snapshot with label.
func (r *Report) Snapshot(label string) (Snapshot, bool) {
	for _, s := range r.Snapshots {
		if s.Label == label {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Encode writes the report as "json" or "yaml".
func (r *Report) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("scenario: unknown report format %q", format)
	}
}

// WriteFile writes the report to path. An empty format is chosen from the
// file extension, defaulting to JSON.
func (r *Report) WriteFile(path, format string) error {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scenario: create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("scenario: create report: %w", err)
	}
	if err := r.Encode(f, format); err != nil {
		f.Close()
		return fmt.Errorf("scenario: encode report: %w", err)
	}
	return f.Close()
}

// RenderText prints the snapshots the way the Hardhat test logs them.
func (r *Report) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	if r.Market != "" {
		fmt.Fprintf(tw, "CToken deployed to: %s\n", r.Market)
	}
	for _, snap := range r.Snapshots {
		fmt.Fprintf(tw, "\n%s\n", snap.Label)
		for _, bal := range snap.Balances {
			fmt.Fprintf(tw, "%s underlying token balance:\t%s\n", bal.Account, bal.Amount)
		}
	}
	return tw.Flush()
}
