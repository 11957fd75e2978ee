package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/pkg/store"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// storeConfig builds the backend configuration from settings and flags.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := a.resolveDataDir()
	if err != nil {
		return types.Config{}, err
	}
	cfg := types.Config{
		Backend:     a.cfg.Backend,
		DataDir:     dataDir,
		PostgresDSN: a.cfg.PostgresDSN,
		SQLite:      a.cfg.SQLite,
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, userError(fmt.Errorf("config: backend %q: %w", cfg.Backend, err))
	}
	return cfg, nil
}

// openStore creates and attaches the configured backend. The caller must
// Detach it.
func (a *app) openStore() (types.Store, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("store attached", zap.String("backend", cfg.Backend), zap.String("data_dir", cfg.DataDir))
	return s, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes a tab-aligned table with a dashed rule under the
// header. Trailing padding is trimmed from each line.
func printTable(w io.Writer, header []string, rows [][]string) error {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, line := range strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n") {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
