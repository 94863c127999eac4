package sweep

import (
	"fmt"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/storage"
	"github.com/spf13/cobra"
)

var (
	// SweepCommands represents the sweep command group
	SweepCommands = &cobra.Command{
		Use:   "sweep",
		Short: "Operate on all persisted storage instances",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			util.OpenRegistry()
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Logs type, key and value of every instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := util.OpenRegistry().List()
			if err != nil {
				return err
			}
			fmt.Printf("%d instances\n", len(entries))
			return nil
		},
	}
	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Destroys every outdated instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := util.OpenRegistry().Clean()
			if err != nil {
				return err
			}
			fmt.Printf("cleaned %d outdated instances\n", n)
			return nil
		},
	}
	supportCmd = &cobra.Command{
		Use:   "support",
		Short: "Shows which storage types have a working backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			util.OpenRegistry()
			support := storage.SupportStorage()
			for _, t := range storage.Types {
				fmt.Printf("%-16s%t\n", t, support[t])
			}
			return nil
		},
	}
)

func init() {
	SweepCommands.AddCommand(listCmd)
	SweepCommands.AddCommand(cleanCmd)
	SweepCommands.AddCommand(supportCmd)
}
