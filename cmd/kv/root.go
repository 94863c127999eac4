package kv

import (
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/storage"
	"github.com/spf13/cobra"
)

var (
	instance *storage.Storage

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Read and write one storage instance",
		PersistentPreRunE: setupInstance,
	}
)

func init() {
	// Add storage instance flags to the KV command
	util.SetupStorageFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(replaceCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(rmCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(destroyCmd)
	KeyValueCommands.AddCommand(dumpCmd)
	KeyValueCommands.AddCommand(outdatedCmd)
	KeyValueCommands.AddCommand(configCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupInstance opens the registry and creates the storage instance
func setupInstance(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetStorageConfig()
	if err != nil {
		return err
	}

	instance, err = util.OpenRegistry().New(conf)
	return err
}
