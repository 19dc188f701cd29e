// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var uploadFile string // JSON file with the event batch

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Upload and tail experiment events",
}

var uploadEventsCmd = &cobra.Command{
	Use:   "upload <experiment>",
	Short: "Append a batch of events from a JSON file",
	Args:  cobra.ExactArgs(1),
	Run:   runUploadEvents,
}

var tailEventsCmd = &cobra.Command{
	Use:   "tail <experiment>",
	Short: "Stream events appended to an experiment until interrupted",
	Args:  cobra.ExactArgs(1),
	Run:   runTailEvents,
}

func init() {
	uploadEventsCmd.Flags().StringVarP(&uploadFile, "events", "e", "",
		"JSON file containing the event batch (required)")
	uploadEventsCmd.MarkFlagRequired("events")
}

func runUploadEvents(cmd *cobra.Command, args []string) {
	events, err := readEventsFile(uploadFile)
	if err != nil {
		OutputError("failed to read events file", err)
	}

	client := NewAPIClient(serverURL)
	var resp map[string]any
	path := fmt.Sprintf("/v1/experiments/%s/events", args[0])
	if err := client.Post(context.Background(), path, map[string]any{"events": events}, &resp); err != nil {
		OutputError("failed to upload events", err)
	}

	if prettyOutput() {
		fmt.Printf("Uploaded %d events to %s.\n", len(events), args[0])
		return
	}
	OutputJSON(resp)
}

func runTailEvents(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if prettyOutput() {
		fmt.Fprintf(os.Stderr, "Tailing events for %s (Ctrl-C to stop)...\n", args[0])
	}

	client := NewAPIClient(serverURL)
	err := client.Tail(ctx, args[0], func(raw json.RawMessage) {
		var indented map[string]any
		if json.Unmarshal(raw, &indented) == nil {
			OutputJSON(indented)
			return
		}
		fmt.Println(string(raw))
	})
	if err != nil {
		OutputError("event stream failed", err)
	}
}
