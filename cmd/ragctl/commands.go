package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// The reply types below mirror the JSON written by internal/http.

type healthResponse struct {
	Status string `json:"status"`
}

type ingestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type ingestResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

type documentSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	ChunkCount int    `json:"chunkCount"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type retrieveResult struct {
	Document   documentSummary `json:"document"`
	Chunk      string          `json:"chunk"`
	Similarity float64         `json:"similarity"`
}

type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type reasonResponse struct {
	FinalAnswer string `json:"finalAnswer"`
	Formatted   string `json:"formatted"`
}

type chatResponse struct {
	Reply             string `json:"reply"`
	ConversationID    string `json:"conversationId"`
	ConversationTitle string `json:"conversationTitle"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type toolMatch struct {
	Tool        toolInfo `json:"tool"`
	Score       int      `json:"score"`
	MatchReason string   `json:"matchReason"`
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragcored server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp healthResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server status: %s\n", resp.Status)
			return nil
		},
	}
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var title, docType, text string
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Store a document in the tenant's knowledge base",
		Long: `Store a document in the tenant's knowledge base.

A file is uploaded as multipart form data. The title defaults to the
file name and the type to one inferred from the extension. With --text
the content is sent inline instead.

Examples:
  ragctl --tenant acme ingest faq.md
  ragctl --tenant acme ingest --title "Horários" --text "Abrimos às 8h"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp ingestResponse
			switch {
			case len(args) == 1:
				fields := map[string]string{"title": title, "type": docType}
				if err := c.upload(cmd.Context(), "/api/v1/knowledge/upload", args[0], fields, &resp); err != nil {
					return err
				}
			case text != "":
				req := ingestRequest{Title: title, Content: text, Type: docType}
				if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/knowledge", req, &resp); err != nil {
					return err
				}
			default:
				return fmt.Errorf("pass a file or --text")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored document %s in %d chunks\n", resp.DocumentID, resp.Chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&docType, "type", "", "document type: pdf, txt, md, website or manual")
	cmd.Flags().StringVar(&text, "text", "", "inline document content")
	return cmd
}

func newDocsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List the tenant's documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp struct {
				Documents []documentSummary `json:"documents"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/knowledge", nil, &resp); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tCHUNKS")
			for _, d := range resp.Documents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.ID, d.Title, d.Type, d.ChunkCount)
			}
			return tw.Flush()
		},
	}
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tenant's knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp struct {
				Results []retrieveResult `json:"results"`
			}
			req := retrieveRequest{Query: strings.Join(args, " "), Limit: limit}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/retrieve", req, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			for i, r := range resp.Results {
				fmt.Fprintf(out, "%d. %s (%.2f)\n   %s\n", i+1, r.Document.Title, r.Similarity, r.Chunk)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default when 0)")
	return cmd
}

func newReasonCmd(opts *globalOptions) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "reason <message>",
		Short: "Run the reasoning pipeline and print its trace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp reasonResponse
			req := messageRequest{Message: strings.Join(args, " "), ConversationID: conversationID}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/reason", req, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Formatted)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id for history lookups")
	return cmd
}

func newChatCmd(opts *globalOptions) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one chat message",
		Long: `Send one chat message. Without --conversation a new conversation
is started; its id is printed so the next turn can continue it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp chatResponse
			req := messageRequest{Message: strings.Join(args, " "), ConversationID: conversationID}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/chat", req, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Reply)
			fmt.Fprintf(out, "\n[conversation %s: %s]\n", resp.ConversationID, resp.ConversationTitle)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation to continue")
	return cmd
}

func newConversationsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations [id]",
		Short: "List conversations, or print one thread",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			path := "/api/v1/conversations"
			if len(args) == 1 {
				path += "/" + escape(args[0])
			}
			var resp json.RawMessage
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newMemoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Read and write the tenant's long-term memory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Save a memory entry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			body := map[string]string{"value": strings.Join(args[1:], " ")}
			var resp json.RawMessage
			if err := c.do(cmd.Context(), http.MethodPut, "/api/v1/memory/"+escape(args[0]), body, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}, &cobra.Command{
		Use:   "get <key>",
		Short: "Print a memory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp json.RawMessage
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/memory/"+escape(args[0]), nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}, newMemorySearchCmd(opts))
	return cmd
}

type memorySearchResponse struct {
	Memories []struct {
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Similarity float32 `json:"similarity"`
	} `json:"memories"`
}

func newMemorySearchCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find memory entries similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			q := url.Values{"q": {strings.Join(args, " ")}}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			var resp memorySearchResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/memory?"+q.Encode(), nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Memories) == 0 {
				fmt.Fprintln(out, "No memories")
				return nil
			}
			for _, m := range resp.Memories {
				fmt.Fprintf(out, "%s = %s (%.2f)\n", m.Key, m.Value, m.Similarity)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (server default 5)")
	return cmd
}

func newTenantCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tenant",
		Short: "Print the tenant profile and its system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			var resp json.RawMessage
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/tenant", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newToolsCmd(opts *globalOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List or search the tool catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(opts)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if query != "" {
				var resp struct {
					Matches []toolMatch `json:"matches"`
				}
				if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/tools?q="+url.QueryEscape(query), nil, &resp); err != nil {
					return err
				}
				fmt.Fprintln(tw, "NAME\tSCORE\tMATCH")
				for _, m := range resp.Matches {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", m.Tool.Name, m.Score, m.MatchReason)
				}
				return tw.Flush()
			}
			var resp struct {
				Tools []toolInfo `json:"tools"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/tools", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(tw, "NAME\tCATEGORY\tDESCRIPTION")
			for _, t := range resp.Tools {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Category, t.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search by name, keyword or regular expression")
	cmd.AddCommand(newToolRunCmd(opts))
	return cmd
}

func newToolRunCmd(opts *globalOptions) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute one tool",
		Long: `Execute one tool with JSON parameters.

Example:
  ragctl --tenant acme tools run calculate --params '{"expression":"10/4"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			if err := c.tenantScoped(); err != nil {
				return err
			}
			body := map[string]any{}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &body); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}
			var resp json.RawMessage
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/tools/"+escape(args[0]), body, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "tool parameters as a JSON object")
	return cmd
}
