package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"splashgate/portal-service/internal/config"
)

type cliArgs struct {
	ConfigPath  string
	NetworkName string
	SSIDName    string
	SSIDPass    string
}

const usageLine = "usage: splashgate -n network -s ssid -p password [-config path]"

// parseArgs accepts both the short and long spelling of each flag. A missing
// network, SSID or password is a *config.ConfigurationError.
func parseArgs(args []string, out io.Writer) (cliArgs, error) {
	var a cliArgs
	fs := flag.NewFlagSet("splashgate", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintln(out, usageLine)
		fs.PrintDefaults()
	}
	fs.StringVar(&a.ConfigPath, "config", "", "path to config file (overrides SPLASHGATE_CONFIG env var)")
	fs.StringVar(&a.NetworkName, "n", "", "network name (shorthand)")
	fs.StringVar(&a.NetworkName, "network", "", "name of the network to provision")
	fs.StringVar(&a.SSIDName, "s", "", "SSID name (shorthand)")
	fs.StringVar(&a.SSIDName, "ssid", "", "name of the SSID to create")
	fs.StringVar(&a.SSIDPass, "p", "", "SSID password (shorthand)")
	fs.StringVar(&a.SSIDPass, "password", "", "WPA2 pre-shared key for the SSID")
	if err := fs.Parse(args); err != nil {
		return a, err
	}

	switch {
	case strings.TrimSpace(a.NetworkName) == "":
		return a, &config.ConfigurationError{Field: "-network", Reason: "required"}
	case strings.TrimSpace(a.SSIDName) == "":
		return a, &config.ConfigurationError{Field: "-ssid", Reason: "required"}
	case a.SSIDPass == "":
		return a, &config.ConfigurationError{Field: "-password", Reason: "required"}
	}
	return a, nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
