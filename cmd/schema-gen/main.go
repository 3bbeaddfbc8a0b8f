// Schema Generator
//
// Generates JSON Schema files from Go types: the admin API request and
// response bodies, and the task queue payloads.
//
// Usage:
//
//	go run ./cmd/schema-gen -out ./schemas
//
// Output:
//
//	schemas/admin.json
//	schemas/ledger.json
//	schemas/queue.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/handlers"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func groups() []SchemaGroup {
	return []SchemaGroup{
		{
			Name: "admin",
			Types: []any{
				handlers.CreateRequestBody{},
				handlers.CreateRequestResponse{},
				handlers.ReprocessBody{},
				handlers.ReprocessResponse{},
				handlers.ListRequestsQuery{},
				handlers.ListRequestsResponse{},
				handlers.ListJobsQuery{},
				handlers.ListJobsResponse{},
				handlers.ListScenesResponse{},
				handlers.ListFeaturesResponse{},
				handlers.ErrorResponse{},
			},
			Output: "admin.json",
		},
		{
			Name: "ledger",
			Types: []any{
				database.ProcessingRequest{},
				database.JobRecord{},
				database.PollState{},
				database.SceneMetadata{},
				ledger.RequestView{},
			},
			Output: "ledger.json",
		},
	}
}

func main() {
	outputDir := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range groups() {
		outputPath := filepath.Join(*outputDir, group.Output)
		if err := writeSchema(generateGroupSchema(group), outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outputPath)
	}

	queue, err := generateQueueSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build queue schemas: %v\n", err)
		os.Exit(1)
	}
	outputPath := filepath.Join(*outputDir, "queue.json")
	if err := writeSchema(queue, outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write queue.json: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", outputPath)

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return envelope(group.Name, definitions)
}

// generateQueueSchema emits the same payload schemas the queue validates
// against, keyed by task type.
func generateQueueSchema() (map[string]any, error) {
	types := make([]string, 0, len(taskqueue.PayloadTypes))
	for t := range taskqueue.PayloadTypes {
		types = append(types, t)
	}
	sort.Strings(types)

	definitions := make(map[string]any, len(types))
	for _, t := range types {
		schema, err := taskqueue.PayloadSchema(t)
		if err != nil {
			return nil, err
		}
		definitions[t] = schema
	}
	return envelope("queue", definitions), nil
}

func envelope(name string, definitions map[string]any) map[string]any {
	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://lakewatch.dev/schemas/thermal-service/%s.json", name),
		"title":       fmt.Sprintf("%s Types", capitalize(name)),
		"description": fmt.Sprintf("JSON Schema for %s types generated from Go structs", name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
