package main

import (
	"os"

	servecmder "github.com/papercomputeco/chatrelay/cmd/chatrelay/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "chatrelayd"
	cmd.SilenceUsage = true
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .chatrelay/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
