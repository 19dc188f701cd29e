// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibesml/vibes/services/vibes/catalog"
)

var dbPath string // SQLite catalog file

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Administer the local catalog database directly",
	Long: `Operates on the SQLite catalog file without going through the server.

Useful for provisioning a fresh database before first start and for
checking what tables exist in an existing one.`,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the catalog metadata schema",
	Run:   runDBInit,
}

var dbTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List experiment data tables in the catalog",
	Run:   runDBTables,
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbPath, "path", "vibes.db",
		"SQLite catalog file")
}

func openCatalog() *catalog.Catalog {
	cat, err := catalog.Open(dbPath, slog.Default())
	if err != nil {
		OutputError("failed to open catalog", err)
	}
	return cat
}

func runDBInit(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initialized, err := cat.Initialized(ctx)
	if err != nil {
		OutputError("failed to check catalog state", err)
	}
	if initialized {
		fmt.Printf("Catalog %s is already initialized.\n", dbPath)
		return
	}
	if err := cat.Init(ctx); err != nil {
		OutputError("failed to initialize catalog", err)
	}
	fmt.Printf("Initialized catalog %s.\n", dbPath)
}

func runDBTables(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables, err := cat.ListTables(ctx)
	if err != nil {
		OutputError("failed to list tables", err)
	}

	if prettyOutput() {
		if len(tables) == 0 {
			fmt.Println("No experiment tables.")
			return
		}
		for _, table := range tables {
			fmt.Println(table)
		}
		return
	}
	OutputJSON(map[string]any{"tables": tables})
}
