package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// Suggestion represents one typeahead entry.
type Suggestion struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug,omitempty"`
	SpaceSlug string `json:"space_slug,omitempty"`
}

// SuggestCmd creates the suggest command.
func SuggestCmd() *cobra.Command {
	var spaceID string

	cmd := &cobra.Command{
		Use:   "suggest <query>",
		Short: "Typeahead title suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSuggest(cmd, args[0], spaceID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&spaceID, "space", "s", "", "Filter by space ID")

	return cmd
}

func runSuggest(cmd *cobra.Command, query, spaceID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("q", query)
	if spaceID != "" {
		params.Set("space_id", spaceID)
	}

	resp, err := api.Get("/suggest?" + params.Encode())
	if err != nil {
		return fmt.Errorf("suggest failed: %w", err)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal(resp.Data, &suggestions); err != nil {
		return fmt.Errorf("failed to parse suggestions: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(suggestions, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(suggestions) == 0 {
		fmt.Println("No suggestions.")
		return nil
	}

	for _, s := range suggestions {
		fmt.Printf("%s  (%s:%s)\n", s.Title, s.Type, s.ID)
	}
	return nil
}
