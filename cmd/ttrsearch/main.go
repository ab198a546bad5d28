// Command ttrsearch is a small CLI client for a locally running ttrproxy.
// It posts a player search and prints the enriched records.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"
)

type searchRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"pagesize"`
	WithTTR  bool   `json:"with_ttr"`
}

type playerRecord struct {
	ID          string            `json:"id"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Club        string            `json:"club"`
	TTR         *int              `json:"ttr"`
	QTTR        *int              `json:"qttr"`
	FieldErrors map[string]string `json:"field_errors"`
}

type searchResponse struct {
	Records    []playerRecord `json:"records"`
	Page       int            `json:"page"`
	TotalCount int            `json:"total_count"`
	PagesCount int            `json:"pages_count"`
	Error      string         `json:"error"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://127.0.0.1:3001", "base URL of the running proxy")
	page := flag.Int("page", 1, "result page")
	pageSize := flag.Int("pagesize", 10, "results per page (1-50)")
	flag.Parse()

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: ttrsearch [flags] <query>")
	}

	body, err := json.Marshal(searchRequest{
		Query:    flag.Arg(0),
		Page:     *page,
		PageSize: *pageSize,
		WithTTR:  true,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *addr+"/api/search/players", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if payload.Error != "" {
			return fmt.Errorf("proxy answered %d: %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("proxy answered %d", resp.StatusCode)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCLUB\tTTR\tQ-TTR")
	for _, r := range payload.Records {
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n",
			r.FirstName, r.LastName, r.Club, formatRating(r.TTR), formatRating(r.QTTR))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\npage %d of %d, %d players total\n", payload.Page, payload.PagesCount, payload.TotalCount)
	return nil
}

func formatRating(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
