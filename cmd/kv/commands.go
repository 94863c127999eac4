package kv

import (
	"fmt"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [path] [value]",
		Short: "Sets the value at a path",
		Long:  "Sets the value at a dotted path. Use \\. for a literal dot. The value is parsed as JSON, anything else is stored as a string.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Set(args[0], util.ParseValue(args[1])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [value]",
		Short: "Replaces the whole value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Replace(util.ParseValue(args[0])); err != nil {
				return err
			}
			fmt.Println("replace successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Reads the value at a path, or the whole value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			value, err := instance.Get(path)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, path=%s, value=%s\n", instance.Key(), path, util.FormatValue(value))
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [path]",
		Short: "Checks if a path exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := instance.Has(args[0])
			if err != nil {
				return err
			}
			if res.Has {
				fmt.Printf("path=%s, has=true, value=%s\n", args[0], util.FormatValue(res.Value))
			} else {
				fmt.Printf("path=%s, has=false\n", args[0])
			}
			return nil
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [path]",
		Short: "Removes the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Remove(args[0]); err != nil {
				return err
			}
			fmt.Println("remove successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Resets the value to an empty object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Clear(); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Deletes the data and the check record of the key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Destroy(); err != nil {
				return err
			}
			fmt.Println("destroy successfully")
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Logs the value as indented JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return instance.Dump()
		},
	}
	outdatedCmd = &cobra.Command{
		Use:   "outdated",
		Short: "Checks if the persisted data is outdated (without renewing it)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outdated, err := instance.IsOutdated()
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, outdated=%t\n", instance.Key(), outdated)
			return nil
		},
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Prints the configuration of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(instance.Config().String())
			if instance.Type() != instance.Config().Type {
				fmt.Printf("\n%s is not supported, using %s\n", instance.Config().Type, instance.Type())
			}
			return nil
		},
	}
)
