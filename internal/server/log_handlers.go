// Package server provides the HTTP server and routing for the vault.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// journalUnit is the systemd unit whose journal backs the log endpoints
const journalUnit = "vault"

// LogHandlers handles log access via journalctl
type LogHandlers struct {
	log zerolog.Logger
}

// NewLogHandlers creates a new log handlers instance
func NewLogHandlers(log zerolog.Logger) *LogHandlers {
	return &LogHandlers{
		log: log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogSourceInfo represents one available log source
type LogSourceInfo struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// LogListResponse represents the list of available log sources
type LogListResponse struct {
	Sources []LogSourceInfo `json:"sources"`
	Total   int             `json:"total"`
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleListLogs returns available log sources
func (h *LogHandlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.log.Debug().Msg("Listing log sources")

	// The process logs to stdout; systemd's journal is the only source
	response := LogListResponse{
		Sources: []LogSourceInfo{
			{
				Name:   journalUnit,
				Source: "systemd journal",
			},
		},
		Total: 1,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleGetLogs retrieves log content from journalctl with filtering
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Query parameters
	lines := parseLineCount(r.URL.Query().Get("lines"), 100)
	level := strings.ToUpper(r.URL.Query().Get("level"))
	search := r.URL.Query().Get("search")

	h.log.Debug().
		Int("lines", lines).
		Str("level", level).
		Str("search", search).
		Msg("Getting log content from journalctl")

	logLines, err := h.readJournal(lines)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read journalctl logs")
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	totalLines := len(logLines)
	filteredLines := h.filterLogs(logLines, level, search)

	response := LogContentResponse{
		Lines:  filteredLines,
		Total:  totalLines,
		Status: "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleGetErrors retrieves only error logs from journalctl
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Errors are sparse, so scan a longer default window
	lines := parseLineCount(r.URL.Query().Get("lines"), 500)

	h.log.Debug().Int("lines", lines).Msg("Getting error logs from journalctl")

	logLines, err := h.readJournal(lines)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read journalctl logs")
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	totalLines := len(logLines)
	errorLines := h.filterLogs(logLines, "ERROR", "")

	response := LogContentResponse{
		Lines:  errorLines,
		Total:  totalLines,
		Status: "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// parseLineCount parses a line-count parameter with a default and a cap
func parseLineCount(param string, fallback int) int {
	lines := fallback
	if param != "" {
		if parsed, err := strconv.Atoi(param); err == nil && parsed > 0 {
			lines = parsed
			if lines > 10000 {
				lines = 10000 // Max 10k lines for safety
			}
		}
	}
	return lines
}

// readJournal reads the last n journal lines for the service unit
func (h *LogHandlers) readJournal(lines int) ([]string, error) {
	cmd := exec.Command("journalctl", "-u", journalUnit,
		fmt.Sprintf("--lines=%d", lines),
		"--output=short",
		"--no-pager")

	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	logLines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(logLines) == 1 && logLines[0] == "" {
		logLines = []string{}
	}

	return logLines, nil
}

// filterLogs filters log lines by level and search term
func (h *LogHandlers) filterLogs(lines []string, level string, search string) []string {
	if level == "" && search == "" {
		return lines
	}

	filtered := make([]string, 0)

	for _, line := range lines {
		// Skip empty lines
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Filter by level if specified
		if level != "" {
			if !h.lineMatchesLevel(line, level) {
				continue
			}
		}

		// Filter by search term if specified
		if search != "" {
			if !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
				continue
			}
		}

		filtered = append(filtered, line)
	}

	return filtered
}

// lineMatchesLevel checks if a log line matches the specified level
func (h *LogHandlers) lineMatchesLevel(line string, level string) bool {
	// Support both zerolog JSON format and plain text format

	// Check for JSON format: {"level":"error",...}
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	// Check for plain text format: ERROR: message or [ERROR] message
	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)

	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ")
}
