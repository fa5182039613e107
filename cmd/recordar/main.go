package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	owner   string
)

var rootCmd = &cobra.Command{
	Use:           "recordar",
	Short:         "Spanish chat reminders: parse, schedule and notify",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&owner, "usuario", "u", defaultOwner(), "owner id used by client commands")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(askCmd, remindCmd, listCmd, clearCmd, pollCmd, historyCmd, parseCmd, configCmd)
}

func defaultOwner() string {
	if u := os.Getenv("RECORDAR_USUARIO"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("recordar version %s", version)
}
