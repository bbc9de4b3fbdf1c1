package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitCmd creates the init command, which saves the service token and API URL
// to the global config file.
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Save client credentials",
		Long:  "Saves the service token and API URL (from --token and --api-url) to the global config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			apiURL, _ := cmd.Flags().GetString("api-url")
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			if apiURL == "" {
				apiURL = defaultAPIURL
			}

			// Verify the credentials before persisting them.
			api, err := NewAPIClientWithConfig(token, apiURL)
			if err != nil {
				return err
			}
			if _, err := api.Get("/health"); err != nil {
				return fmt.Errorf("could not reach %s: %w", apiURL, err)
			}

			if err := SaveGlobalConfig(&GlobalConfig{
				ServiceToken: token,
				APIURL:       apiURL,
			}); err != nil {
				return err
			}

			path, _ := GetConfigPath()
			fmt.Printf("Saved credentials to %s\n", path)
			return nil
		},
	}
}
