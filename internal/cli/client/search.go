package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query   string        `json:"query"`
	Filters SearchFilters `json:"filters"`
	Sort    string        `json:"sort,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Cursor  string        `json:"cursor,omitempty"`
}

// SearchFilters narrows a search request.
type SearchFilters struct {
	SpaceID  string   `json:"space_id,omitempty"`
	AuthorID string   `json:"author_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// SearchHit represents one search result.
type SearchHit struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet,omitempty"`
	SpaceSlug string  `json:"space_slug,omitempty"`
	Slug      string  `json:"slug,omitempty"`
	VoteScore int     `json:"vote_score"`
	Score     float64 `json:"score"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Hits    []SearchHit `json:"hits"`
	Total   int         `json:"total"`
	Mode    string      `json:"mode"`
	Cursor  string      `json:"cursor,omitempty"`
	HasMore bool        `json:"has_more"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		spaceID  string
		authorID string
		tags     []string
		sort     string
		limit    int
		cursor   string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents",
		Long:  "Searches the forum content with hybrid semantic and keyword retrieval.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := SearchRequest{
				Query: args[0],
				Filters: SearchFilters{
					SpaceID:  spaceID,
					AuthorID: authorID,
					Tags:     tags,
				},
				Sort:   sort,
				Limit:  limit,
				Cursor: cursor,
			}
			return runSearch(cmd, req, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&spaceID, "space", "s", "", "Filter by space ID")
	cmd.Flags().StringVar(&authorID, "author", "", "Filter by author ID")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Filter by tag (repeatable)")
	cmd.Flags().StringVar(&sort, "sort", "", "Sort order (relevance, newest, oldest, votes, activity)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runSearch(cmd *cobra.Command, req SearchRequest, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results (%s):\n\n", searchResp.Total, searchResp.Mode)
	for i, hit := range searchResp.Hits {
		fmt.Printf("%d. %s (%.2f)\n", i+1, hit.Title, hit.Score)
		if hit.Snippet != "" {
			snippet := hit.Snippet
			if len(snippet) > 100 {
				snippet = snippet[:97] + "..."
			}
			fmt.Printf("   %s\n", snippet)
		}
		fmt.Printf("   %s:%s", hit.Type, hit.ID)
		if hit.SpaceSlug != "" {
			fmt.Printf("  /%s/%s", hit.SpaceSlug, hit.Slug)
		}
		fmt.Println()
		if i < len(searchResp.Hits)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}
	if searchResp.HasMore && searchResp.Cursor != "" {
		fmt.Printf("\nMore results: --cursor %s\n", searchResp.Cursor)
	}

	return nil
}
