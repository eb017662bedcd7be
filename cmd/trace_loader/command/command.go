// Package command implements the trace_loader CLI, which assembles JSON-lines span files
// offline and prints each trace as an indented tree.
package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/Avi18971911/TraceView/internal/logging"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/file_loader"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/helper"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"github.com/Avi18971911/TraceView/internal/pipeline/tree/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const indent = "  "

func NewCommand() *cobra.Command {
	var logLevel string
	var traceId string
	var showAttributes bool

	cmd := &cobra.Command{
		Use:          "trace_loader FILE...",
		Short:        "Print the traces assembled from span files",
		Long:         `trace_loader reads JSON-lines span files, assembles their spans into traces and prints every trace as an indented tree.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Level: logLevel})
			if err != nil {
				return err
			}
			defer logger.Sync()

			traces, err := loadTraces(args, logger)
			if err != nil {
				return err
			}
			if traceId != "" {
				traces = filterTraces(traces, traceId)
				if len(traces) == 0 {
					return fmt.Errorf("trace %s not found", traceId)
				}
			}
			printTraces(cmd.OutOrStdout(), traces, showAttributes)
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&traceId, "trace", "", "only print the trace with this id")
	cmd.Flags().BoolVar(&showAttributes, "attributes", false, "print span attributes")
	return cmd
}

// loadTraces assembles each file on its own, the same way a file load into the collector
// does.
func loadTraces(paths []string, logger *zap.Logger) ([]model.Trace, error) {
	fileLoader := file_loader.NewFileLoader(logger)
	treeConstructor := service.NewTreeConstructorService(logger)

	var traces []model.Trace
	for _, path := range paths {
		spans, err := fileLoader.LoadFile(path)
		if err != nil {
			return nil, err
		}
		traces = append(traces, treeConstructor.BuildTraces(spans)...)
	}
	return traces, nil
}

func filterTraces(traces []model.Trace, traceId string) []model.Trace {
	var filtered []model.Trace
	for _, trace := range traces {
		if trace.Id == traceId {
			filtered = append(filtered, trace)
		}
	}
	return filtered
}

func printTraces(w io.Writer, traces []model.Trace, showAttributes bool) {
	for i, trace := range traces {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "trace %s (%d spans)\n", trace.Id, len(trace.Spans))
		for _, span := range trace.Spans {
			prefix := strings.Repeat(indent, span.Level)
			fmt.Fprintf(w, "%s%s +%dus %dus\n", prefix, span.Name, span.OffsetMicros, span.DurationMicros)
			if !showAttributes {
				continue
			}
			for _, key := range helper.SortedKeys(span.Attributes) {
				fmt.Fprintf(w, "%s%s%s=%s\n", prefix, indent, key, span.Attributes[key])
			}
		}
	}
}
