// Package cli holds the agent's cobra commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/config"
)

// Version is the build version, overridable at link time.
var Version = "dev"

// ServerConfig is the loaded configuration shared by the commands.
var ServerConfig *config.Config

// SetupRootCmd wires the command tree over the loaded configuration.
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c

	root := &cobra.Command{
		Use:   "agent",
		Short: "Offline-first fetch agent",
		Long:  "Intercepts outbound requests, serves them cache-first or network-first,\nand reconciles locally queued writes with the remote endpoint.",
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	root.PersistentFlags().StringVar(&c.Upstream.BaseURL, "upstream", c.Upstream.BaseURL, "upstream origin base URL")
	root.PersistentFlags().IntVar(&c.Server.Port, "port", c.Server.Port, "listen port")
	root.PersistentFlags().StringVar(&c.Cache.SQLitePath, "db", c.Cache.SQLitePath, "sqlite database path (empty for in-memory)")

	return root
}
