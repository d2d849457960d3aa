// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"loan-origination/pkg/registry"
)

const defaultRegistryPath = "pkg/registry/activities.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "update":
		err = runUpdate(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	default:
		help()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	taskType := fs.String("taskType", "", "Camunda task type (e.g., record-status-transition)")
	displayName := fs.String("displayName", "", "Display name")
	description := fs.String("description", "", "Description")
	category := fs.String("category", "lifecycle", "Category")
	version := fs.String("version", "1.0.0", "Version")
	timeout := fs.String("timeout", "10s", "Job timeout")
	retries := fs.Int("retries", 3, "Retries")
	fs.Parse(args)

	if *taskType == "" || *displayName == "" {
		fs.Usage()
		return fmt.Errorf("taskType and displayName are required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	}
	if _, ok := reg.Find(*taskType); ok {
		return fmt.Errorf("activity %s already exists", *taskType)
	}

	reg.Activities = append(reg.Activities, registry.Activity{
		ID:          *taskType,
		DisplayName: *displayName,
		Description: *description,
		Category:    *category,
		Version:     *version,
		TaskType:    *taskType,
		ErrorCodes:  []string{},
		Timeout:     *timeout,
		Retries:     *retries,
		Workflows:   []string{},
		Tags:        []string{},
	})
	if err := save(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Added activity: %s\n", *taskType)
	return nil
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	taskType := fs.String("taskType", "", "Task type of the activity to update")
	field := fs.String("field", "", "Field to update (version, displayName, description, category, timeout, retries)")
	value := fs.String("value", "", "New value")
	fs.Parse(args)

	if *taskType == "" || *field == "" || *value == "" {
		fs.Usage()
		return fmt.Errorf("taskType, field and value are required")
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}

	idx := -1
	for i := range reg.Activities {
		if reg.Activities[i].TaskType == *taskType {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("activity %s not found", *taskType)
	}

	a := &reg.Activities[idx]
	switch *field {
	case "version":
		a.Version = *value
	case "displayName":
		a.DisplayName = *value
	case "description":
		a.Description = *value
	case "category":
		a.Category = *value
	case "timeout":
		if _, err := time.ParseDuration(*value); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		a.Timeout = *value
	case "retries":
		n, err := strconv.Atoi(*value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = n
	default:
		return fmt.Errorf("unknown field: %s", *field)
	}

	if err := save(reg, *path); err != nil {
		return err
	}
	fmt.Printf("Updated %s.%s = %s\n", *taskType, *field, *value)
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	fs.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	path := fs.String("path", defaultRegistryPath, "Path to registry file")
	fs.Parse(args)

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return err
	}
	for _, a := range reg.Activities {
		fmt.Printf("%-28s %-8s timeout=%-5s retries=%d  %s\n", a.TaskType, a.Version, a.Timeout, a.Retries, a.DisplayName)
	}
	return nil
}

func save(reg *registry.ActivityRegistry, path string) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format("2006-01-02")
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add       Add a worker activity to the registry
  update    Update a field of an existing activity
  validate  Check the registry and compile every input schema
  list      Print the registered activities

Examples:
  registry-updater add -taskType send-adverse-action -displayName "Send Adverse Action Notice"
  registry-updater update -taskType notify-status-change -field timeout -value 45s
  registry-updater validate

The registry is embedded into loan-service at build time; rebuild after editing.
` + "\n")
}
