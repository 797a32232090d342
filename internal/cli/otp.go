package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Show the current admin API token",
	Long:  `Show the current admin API token (for when you've scrolled past it).`,
	RunE:  runOTP,
}

func init() {
	rootCmd.AddCommand(otpCmd)
}

func runOTP(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running (token file not found)\nStart the server with: preplab serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty")
	}

	fmt.Printf("Current admin token: %s\n", token)
	return nil
}

// Token file lives alongside the database.
func getTokenFilePath() string {
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".preplab-token")
}
