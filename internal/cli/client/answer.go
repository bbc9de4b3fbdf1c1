package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AnswerRequest represents the answer API request.
type AnswerRequest struct {
	Query      string `json:"query"`
	SpaceID    string `json:"space_id,omitempty"`
	ChunkLimit int    `json:"chunk_limit,omitempty"`
}

// AnswerSource represents one citation in an answer.
type AnswerSource struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	DocID     string `json:"doc_id,omitempty"`
	Title     string `json:"title,omitempty"`
	SpaceSlug string `json:"space_slug,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
}

// AnswerResponse represents the answer API response.
type AnswerResponse struct {
	Answer            *string        `json:"answer"`
	Sources           []AnswerSource `json:"sources"`
	ChunksUsed        int            `json:"chunks_used"`
	FromKnowledgeBase bool           `json:"from_knowledge_base"`
	Model             string         `json:"model,omitempty"`
}

// AnswerCmd creates the answer command.
func AnswerCmd() *cobra.Command {
	var (
		spaceID    string
		chunkLimit int
	)

	cmd := &cobra.Command{
		Use:   "answer <query>",
		Short: "Synthesize a grounded answer",
		Long:  "Asks the configured language model for an answer grounded in indexed forum content.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAnswer(cmd, AnswerRequest{
				Query:      args[0],
				SpaceID:    spaceID,
				ChunkLimit: chunkLimit,
			}, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&spaceID, "space", "s", "", "Scope to a space ID")
	cmd.Flags().IntVar(&chunkLimit, "chunks", 0, "Override the retrieval chunk limit")

	return cmd
}

func runAnswer(cmd *cobra.Command, req AnswerRequest, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/answer", req)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	var answerResp AnswerResponse
	if err := json.Unmarshal(resp.Data, &answerResp); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(answerResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if answerResp.Answer == nil || *answerResp.Answer == "" {
		fmt.Println("No answer available (is a language model provider configured?).")
		return nil
	}

	fmt.Println(*answerResp.Answer)
	if len(answerResp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range answerResp.Sources {
			if src.Title != "" {
				fmt.Printf("  - %s (%s)\n", src.Title, src.ID)
			} else {
				fmt.Printf("  - %s\n", src.ID)
			}
		}
	}
	if !answerResp.FromKnowledgeBase {
		fmt.Println("\n(answered from general knowledge, not indexed content)")
	}
	return nil
}
