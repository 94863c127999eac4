package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sKV/cmd/kv"
	"github.com/ValentinKolb/sKV/cmd/sweep"
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/storage"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "skv",
		Short: "structured, expiring key-value storage",
		Long: fmt.Sprintf(`sKV (v%s)

Structured key-value storage with dotted-path access and expiration
(tag, duration, deadline) on top of flat string-keyed backends.`, storage.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sKV v%s\n", storage.Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig, util.InitLogging)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(sweep.SweepCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupGlobalFlags(RootCmd)
	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()

	// writes the session snapshot, also after a failed command
	if closeErr := util.CloseRegistry(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: closing storage: %v\n", closeErr)
		err = closeErr
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, false)
	}

	if err != nil {
		os.Exit(1)
	}
}
