package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	server, session, device, account, address string

	configSetCmd = &cobra.Command{
		Use:   "set",
		Short: "edit single CLI config entry",
		Long: "this command lets you customize a single configuration entry of " +
			"the hwsign CLI",
		Args: cobra.ExactArgs(2),
		RunE: configSet,
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "edit multiple CLI config entries",
		Long: "this command lets you customize multiple configuration entries of " +
			"the hwsign CLI",
		RunE: configInit,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "print or edit CLI configuration",
		Long: "this command lets you show or customize the configuration of " +
			"the hwsign CLI",
		RunE: configPrint,
	}
)

func init() {
	state := initialState()
	configInitCmd.Flags().StringVar(
		&server, "server", state["server"],
		"address of the hwsign daemon to connect to",
	)
	configInitCmd.Flags().StringVar(
		&session, "session", state["session"],
		"id of the device session used by default",
	)
	configInitCmd.Flags().StringVar(
		&device, "device", state["device"],
		"id of the device bound to the session",
	)
	configInitCmd.Flags().StringVar(
		&account, "account", state["account"],
		"reference of the account used by default",
	)
	configInitCmd.Flags().StringVar(
		&address, "address", state["address"],
		"address of the account used by default",
	)
	configCmd.AddCommand(configSetCmd, configInitCmd)
}

func configSet(_ *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	if _, ok := initialState()[key]; !ok {
		return fmt.Errorf("unknown config entry %s", key)
	}
	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}

func configInit(_ *cobra.Command, _ []string) error {
	if _, err := getState(); err != nil {
		return err
	}

	if err := setState(map[string]string{
		"server":  server,
		"session": session,
		"device":  device,
		"account": account,
		"address": address,
	}); err != nil {
		return err
	}

	fmt.Println("CLI has been configured")
	return nil
}

func configPrint(_ *cobra.Command, _ []string) error {
	state, err := getState()
	if err != nil {
		return err
	}

	buf, _ := json.MarshalIndent(state, "", "   ")
	fmt.Println(string(buf))
	return nil
}
