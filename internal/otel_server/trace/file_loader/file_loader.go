package file_loader

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineBytes = 16 << 20

// LineError reports the 1-based line of a file that could not be parsed.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("unable to parse line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

type FileLoader struct {
	logger *zap.Logger
}

func NewFileLoader(logger *zap.Logger) *FileLoader {
	return &FileLoader{
		logger: logger,
	}
}

// LoadFile parses every line of the file at path. Loading is all or nothing: the first
// line that fails to parse aborts the load.
func (fl *FileLoader) LoadFile(path string) ([]model.Span, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open span file %s: %w", path, err)
	}
	defer file.Close()

	spans, err := fl.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load span file %s: %w", path, err)
	}
	fl.logger.Info("Loaded span file", zap.String("path", path), zap.Int("span_count", len(spans)))
	return spans, nil
}

// Parse reads one JSON encoded span per line. Errors in the content of a line are
// returned as a *LineError.
func (fl *FileLoader) Parse(reader io.Reader) ([]model.Span, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var spans []model.Span
	line := 0
	for scanner.Scan() {
		line++
		span, err := parseLine(scanner.Bytes())
		if err != nil {
			fl.logger.Debug("Failed to parse span file line", zap.Int("line", line), zap.Error(err))
			return nil, &LineError{Line: line, Err: err}
		}
		spans = append(spans, span)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LineError{Line: line + 1, Err: err}
	}
	return spans, nil
}

func parseLine(contents []byte) (model.Span, error) {
	var raw fileSpan
	if err := json.Unmarshal(contents, &raw); err != nil {
		return model.Span{}, err
	}
	return raw.toSpan()
}
