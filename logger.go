package macroplanner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// GenerationLogger is the interface for logging individual tool-loop
// iterations against the generative service.
type GenerationLogger interface {
	LogIteration(iteration IterationLog) error
}

// NewGenerationLogFilePath returns a file path based on a cleaned up model name or id to make it easier to identify specific logs produced with various models.
func NewGenerationLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(model), ":", "_"),
	)
}

// IterationLog represents a single round trip in the generation loop
type IterationLog struct {
	Operation string        `json:"operation"` // day | meal | item
	Date      string        `json:"date,omitempty"`
	Iteration int           `json:"iteration"`
	Timestamp time.Time     `json:"timestamp"`
	LLMInput  string        `json:"llm_input,omitempty"`
	LLMOutput any           `json:"llm_output"`
	ToolCalls []ToolCallLog `json:"tool_calls,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ToolCallLog represents a tool execution within an iteration
type ToolCallLog struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
	Error  string         `json:"error,omitempty"`
}

// FileGenerationLogger logs to a file, accumulating iterations and flushing at the end
type FileGenerationLogger struct {
	iterations []IterationLog
	writer     io.Writer
}

// NewFileGenerationLogger creates a new file-based generation logger
func NewFileGenerationLogger(writer io.Writer) *FileGenerationLogger {
	return &FileGenerationLogger{
		iterations: make([]IterationLog, 0),
		writer:     writer,
	}
}

// LogIteration logs an iteration to the buffer (does not flush immediately)
func (fgl *FileGenerationLogger) LogIteration(iteration IterationLog) error {
	fgl.iterations = append(fgl.iterations, iteration)
	return nil
}

// Flush flushes all accumulated iterations to the writer
func (fgl *FileGenerationLogger) Flush() error {
	if fgl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"generation_session": map[string]any{
			"timestamp":  time.Now(),
			"iterations": fgl.iterations,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal generation log: %w", err)
	}

	if _, err := fgl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write generation log: %w", err)
	}

	// Clear the buffer after successful write
	fgl.iterations = fgl.iterations[:0]
	return nil
}

// NoOpGenerationLogger is a logger that discards all log entries
type NoOpGenerationLogger struct{}

// NewNoOpGenerationLogger creates a new no-op generation logger
func NewNoOpGenerationLogger() *NoOpGenerationLogger {
	return &NoOpGenerationLogger{}
}

// LogIteration discards the iteration log (no-op)
func (nop *NoOpGenerationLogger) LogIteration(iteration IterationLog) error {
	return nil
}

// StdoutGenerationLogger logs each iteration as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutGenerationLogger struct{}

// NewStdoutGenerationLogger creates a new stdout-based generation logger
func NewStdoutGenerationLogger() *StdoutGenerationLogger {
	return &StdoutGenerationLogger{}
}

// LogIteration writes the iteration as a JSON line to os.Stdout
func (l *StdoutGenerationLogger) LogIteration(iteration IterationLog) error {
	data, err := json.Marshal(iteration)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
