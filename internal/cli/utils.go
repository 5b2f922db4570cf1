// Package cli provides output formatting and an HTTP client for the Tanya CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text or json)", s)
	}
}

// snippetLen is how many characters of a source segment text output shows.
const snippetLen = 160

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteIngestResult writes the outcome of one ingestion.
func WriteIngestResult(w io.Writer, source string, result *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, result)
	}
	title := result.Title
	if title == "" {
		title = source
	}
	_, err := fmt.Fprintf(w, "Ingested %q: %d segments (id %s)\n", title, result.ChunkCount, result.DocumentID)
	return err
}

// WriteAnswer writes an answer followed by its sources. segments, when given,
// supplies snippet text for each source in text output.
func WriteAnswer(w io.Writer, resp *models.AskResponse, segments []*models.ScoredSegment, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if len(resp.Sources) == 0 {
		fmt.Fprintln(w, "(no sources)")
		return nil
	}
	fmt.Fprintf(w, "Sources (%dms):\n", resp.QueryTime)
	for i, src := range resp.Sources {
		fmt.Fprintf(w, "  [%d] segment %d  score %.4f\n", i+1, src.Index, src.Score)
		if i < len(segments) {
			fmt.Fprintf(w, "      %s\n", utils.Truncate(segments[i].Content, snippetLen))
		}
	}
	return nil
}

// WritePages writes a document list.
func WritePages(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return WriteJSON(w, docs)
	}
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No pages ingested yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tURL\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			utils.Truncate(d.ID, 17), utils.Truncate(d.Title, 40), d.URL, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// WriteStatus writes store counts and the configuration summary.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, status)
	}
	fmt.Fprintf(w, "Documents: %d\n", status.Documents)
	fmt.Fprintf(w, "Segments:  %d\n", status.Segments)
	if status.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk:      %s\n", FormatBytes(status.DiskUsageBytes))
	}
	for _, key := range []string{"storage_backend", "embedding_provider", "embedding_model", "completion_model", "top_k"} {
		if v, ok := status.Config[key]; ok {
			fmt.Fprintf(w, "%s: %v\n", key, v)
		}
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
