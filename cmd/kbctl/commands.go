package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services/knowledge"
)

// documentLine is one record of a JSON lines import file
type documentLine struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

func newAddCmd(s *session) *cobra.Command {
	var (
		file string
		id   string
	)

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add documents to the knowledge base",
		Long: `Adds a single document from the argument, or one document per line of a
JSON lines file with --file. Each line holds {"id", "content", "metadata"}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []*models.Document
			switch {
			case file != "" && len(args) > 0:
				return errors.New("pass either text or --file, not both")
			case file != "":
				var err error
				if docs, err = readDocuments(file); err != nil {
					return err
				}
			case len(args) == 1:
				doc := models.NewDocument(args[0], nil)
				if id != "" {
					doc.ID = id
				}
				docs = append(docs, doc)
			default:
				return errors.New("nothing to add: pass text or --file")
			}

			for _, doc := range docs {
				if _, err := s.kb.Add(cmd.Context(), doc); err != nil {
					return fmt.Errorf("add %s: %w", doc.ID, err)
				}
				cmd.Printf("added %s\n", doc.ID)
			}
			return s.save()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON lines file of documents")
	cmd.Flags().StringVar(&id, "id", "", "document id for text input (default: generated)")
	return cmd
}

func newSearchCmd(s *session) *cobra.Command {
	var (
		k       int
		asJSON  bool
		preview int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := s.kb.Search(cmd.Context(), args[0], k)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				for _, res := range results {
					res.Document.Embedding = nil
				}
				return writeJSON(cmd.OutOrStdout(), results)
			}

			if len(results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			for _, res := range results {
				cmd.Printf("  [%d] %s (%.4f)\n", res.Rank+1, res.Document.ID, res.Distance)
				cmd.Printf("      %s\n", snippet(res.Document.Content, preview))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", knowledge.DefaultTopK, "number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	cmd.Flags().IntVar(&preview, "preview", 120, "characters of content to show")
	return cmd
}

func newStatsCmd(s *session) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := s.kb.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			cmd.Printf("path:       %s\n", s.path)
			cmd.Printf("documents:  %d\n", stats.Documents)
			cmd.Printf("positions:  %d (%d live)\n", stats.Positions, stats.Live)
			cmd.Printf("dimension:  %d\n", stats.Dimension)
			if stats.Embedder != "" {
				cmd.Printf("embedder:   %s\n", stats.Embedder)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newRemoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id...]",
		Short: "Remove documents by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := s.kb.Remove(id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				cmd.Printf("removed %s\n", id)
			}
			return s.save()
		},
	}
}

func readDocuments(path string) ([]*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []*models.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec documentLine
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if rec.Content == "" {
			return nil, fmt.Errorf("%s:%d: content is required", path, line)
		}
		doc := models.NewDocument(rec.Content, rec.Metadata)
		if rec.ID != "" {
			doc.ID = rec.ID
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func snippet(content string, n int) string {
	content = strings.Join(strings.Fields(content), " ")
	r := []rune(content)
	if n <= 0 || len(r) <= n {
		return content
	}
	return string(r[:n]) + "..."
}
