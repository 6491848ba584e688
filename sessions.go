package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrew-hossack/vidtools/internal/resumable"
)

var flagMaxAge time.Duration

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved upload sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsCleanCmd())
	cmd.AddCommand(newSessionsCancelCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved upload sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsList,
	}
}

func newSessionsCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete saved sessions older than the maximum age",
		Args:  cobra.NoArgs,
		RunE:  runSessionsClean,
	}

	cmd.Flags().DurationVar(&flagMaxAge, "max-age", 0, "override [state] session_max_age")

	return cmd
}

func newSessionsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <file>",
		Short: "Cancel the saved upload session for a file on the server",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsCancel,
	}
}

// sessionJSON is the --json form of a saved session. The session URL is
// omitted because it grants upload access.
type sessionJSON struct {
	Path      string    `json:"path"`
	Endpoint  string    `json:"endpoint"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store := newSessionStore(resolvedCfg, buildLogger(cmd.ErrOrStderr()))

	recs, err := store.List()
	if err != nil {
		return err
	}

	if flagJSON {
		items := make([]sessionJSON, 0, len(recs))
		for _, r := range recs {
			items = append(items, sessionJSON{Path: r.LocalPath, Endpoint: r.Endpoint, Size: r.FileSize, CreatedAt: r.CreatedAt})
		}

		return printJSON(cmd.OutOrStdout(), items)
	}

	if len(recs) == 0 {
		statusf(flagQuiet, "No saved upload sessions.\n")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.LocalPath, formatSize(r.FileSize), formatTime(r.CreatedAt), r.Endpoint})
	}

	printTable(cmd.OutOrStdout(), []string{"PATH", "SIZE", "CREATED", "ENDPOINT"}, rows)

	return nil
}

func runSessionsClean(cmd *cobra.Command, _ []string) error {
	store := newSessionStore(resolvedCfg, buildLogger(cmd.ErrOrStderr()))

	maxAge := resolvedCfg.SessionMaxAge
	if flagMaxAge > 0 {
		maxAge = flagMaxAge
	}

	n, err := store.CleanStale(maxAge)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale upload session(s)\n", n)

	return nil
}

func runSessionsCancel(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd.ErrOrStderr())

	client, err := newSessionClient(resolvedCfg, logger)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	store := newSessionStore(resolvedCfg, logger)

	rec, err := store.Load(client.Endpoint(), absPath)
	if err != nil {
		return err
	}

	if rec == nil {
		return fmt.Errorf("no saved upload session for %s", args[0])
	}

	err = client.CancelSession(cmd.Context(), &resumable.Session{UploadURL: rec.SessionURL})
	if err != nil && !errors.Is(err, resumable.ErrNotFound) {
		return fmt.Errorf("cancelling upload session: %w", err)
	}

	if err := store.Delete(client.Endpoint(), absPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled upload session for %s\n", args[0])

	return nil
}
