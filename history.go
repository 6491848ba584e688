package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrew-hossack/vidtools/internal/journal"
)

var flagHistoryLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntVar(&flagHistoryLimit, "limit", journal.DefaultLimit, "number of entries to show")

	return cmd
}

// historyJSON is the --json form of a journal entry.
type historyJSON struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Endpoint   string     `json:"endpoint"`
	Size       int64      `json:"size"`
	Status     string     `json:"status"`
	RemoteID   string     `json:"remote_id,omitempty"`
	Retries    int        `json:"retries"`
	Requests   int        `json:"requests"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	jr, err := journal.Open(ctx, journalPath(resolvedCfg), buildLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer jr.Close()

	entries, err := jr.Recent(ctx, flagHistoryLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		items := make([]historyJSON, 0, len(entries))
		for _, e := range entries {
			items = append(items, toHistoryJSON(e))
		}

		return printJSON(cmd.OutOrStdout(), items)
	}

	if len(entries) == 0 {
		statusf(flagQuiet, "No uploads recorded.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := e.RemoteID
		if e.Error != "" {
			result = e.Error
		}

		rows = append(rows, []string{
			formatTime(e.StartedAt),
			e.Status,
			formatSize(e.Size),
			strconv.Itoa(e.Retries),
			strconv.Itoa(e.Calls),
			e.Path,
			result,
		})
	}

	printTable(cmd.OutOrStdout(), []string{"STARTED", "STATUS", "SIZE", "RETRIES", "REQUESTS", "PATH", "RESULT"}, rows)

	return nil
}

func toHistoryJSON(e journal.Entry) historyJSON {
	h := historyJSON{
		ID:        e.ID,
		Path:      e.Path,
		Endpoint:  e.Endpoint,
		Size:      e.Size,
		Status:    e.Status,
		RemoteID:  e.RemoteID,
		Retries:   e.Retries,
		Requests:  e.Calls,
		Error:     e.Error,
		StartedAt: e.StartedAt,
	}

	if !e.FinishedAt.IsZero() {
		finished := e.FinishedAt
		h.FinishedAt = &finished
	}

	return h
}
