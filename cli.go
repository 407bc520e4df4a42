package main

import (
	"encoding/json"
	"fmt"
	"os"

	"aboutcue/server/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled.
func RunCLI(args []string, dataDir string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("aboutcue server %s\n", Version)
		return true
	case "shows":
		return cliShows(dataDir)
	case "settings":
		return cliSettings(dataDir)
	case "migrate":
		return cliMigrate(dataDir)
	default:
		return false
	}
}

func cliShows(dataDir string) bool {
	shows, err := store.ListShows(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No shows found.")
			return true
		}
		fmt.Fprintf(os.Stderr, "error listing shows: %v\n", err)
		os.Exit(1)
	}
	if len(shows) == 0 {
		fmt.Println("No shows found.")
		return true
	}
	current := store.LoadSettings(dataDir).LastShowName
	for _, s := range shows {
		marker := " "
		if s == current {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, s)
	}
	return true
}

func cliSettings(dataDir string) bool {
	s := store.LoadSettings(dataDir)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
	return true
}

func cliMigrate(dataDir string) bool {
	if err := store.MigrateLayout(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations complete.")
	return true
}
