// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"loan-origination/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	Category     string
	Description  string
	InputFields  []StructField
	OutputFields []StructField
	Required     []string
	Timeout      string
}

type StructField struct {
	GoName   string
	GoType   string
	JSONName string
}

func main() {
	taskType := flag.String("taskType", "", "Task type from the registry (e.g., record-status-transition)")
	outputDir := flag.String("output", "./internal/workers/", "Root directory for generated workers")
	registryPath := flag.String("registry", "pkg/registry/activities.json", "Path to the activity registry JSON file")
	force := flag.Bool("force", false, "Overwrite an existing worker directory")
	flag.Parse()

	if *taskType == "" {
		fmt.Println("Usage: worker-generator -taskType <type> [-output <dir>] [-registry <path>] [-force]")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}
	act, ok := reg.Find(*taskType)
	if !ok {
		fmt.Fprintf(os.Stderr, "Task type %q not found in %s\n", *taskType, *registryPath)
		os.Exit(1)
	}

	data := workerData(act)
	workerDir := filepath.Join(*outputDir, data.Category, act.TaskType)
	if _, err := os.Stat(workerDir); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists, pass -force to overwrite\n", workerDir)
		os.Exit(1)
	}
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for filename, tmplStr := range templates {
		if err := render(filepath.Join(workerDir, filename), filename, tmplStr, data); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s: %v\n", filename, err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", filepath.Join(workerDir, filename))
	}

	fmt.Printf("\nWorker scaffold generated at %s\n", workerDir)
	fmt.Printf("Next: implement execute in handler.go, register it in cmd/loan-service/main.go and add it under workers in configs/config.yaml\n")
}

func render(path, name, tmplStr string, data WorkerData) error {
	tmpl, err := template.New(name).Funcs(template.FuncMap{"tag": jsonTag}).Parse(tmplStr)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

func workerData(act registry.Activity) WorkerData {
	category := act.Category
	if category == "" {
		category = "lifecycle"
	}
	return WorkerData{
		Name:         act.DisplayName,
		PackageName:  strings.ReplaceAll(act.TaskType, "-", ""),
		TaskType:     act.TaskType,
		Category:     strings.ToLower(category),
		Description:  act.Description,
		InputFields:  structFields(act.InputSchema),
		OutputFields: structFields(act.OutputSchema),
		Required:     requiredFields(act.InputSchema),
		Timeout:      act.Timeout,
	}
}

// structFields turns schema properties into struct fields sorted by JSON name.
func structFields(schema registry.Schema) []StructField {
	names := schema.Properties()
	fields := make([]StructField, 0, len(names))
	for _, name := range names {
		fields = append(fields, StructField{
			GoName:   goName(name),
			GoType:   goType(schema.PropertyType(name)),
			JSONName: name,
		})
	}
	return fields
}

func requiredFields(schema registry.Schema) []string {
	names := schema.Required()
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, goName(name))
	}
	return out
}

// goType maps a JSON schema type to a Go type. A ["string","null"] union
// becomes a pointer.
func goType(jsonType interface{}) string {
	switch t := jsonType.(type) {
	case string:
		switch t {
		case "string":
			return "string"
		case "integer":
			return "int"
		case "number":
			return "float64"
		case "boolean":
			return "bool"
		case "object":
			return "map[string]interface{}"
		case "array":
			return "[]interface{}"
		}
	case []interface{}:
		var base string
		nullable := false
		for _, v := range t {
			if s, _ := v.(string); s == "null" {
				nullable = true
			} else if base == "" {
				base = goType(v)
			}
		}
		if nullable && base != "" && base != "interface{}" {
			return "*" + base
		}
		return base
	}
	return "interface{}"
}

// goName converts camelCase or snake_case JSON names to exported Go names,
// keeping the usual initialisms upper-case.
func goName(jsonName string) string {
	parts := strings.FieldsFunc(jsonName, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	name := b.String()
	for _, ini := range []string{"Id", "Url", "Json"} {
		if strings.HasSuffix(name, ini) {
			name = strings.TrimSuffix(name, ini) + strings.ToUpper(ini)
		}
	}
	return name
}

func jsonTag(name string) string {
	return "`json:\"" + name + ",omitempty\"`"
}
