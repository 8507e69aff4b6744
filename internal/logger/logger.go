package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lokiURL  string
	lokiHTTP *http.Client
)

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// Init builds the process logger. Logs always go to stdout; when LOKI_URL
// is set they are additionally shipped to Loki.
func Init(serviceName, environment string) *zap.Logger {
	consoleConfig := zap.NewProductionEncoderConfig()
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleConfig),
		zapcore.AddSync(os.Stdout),
		zapcore.InfoLevel,
	)

	lokiURL = os.Getenv("LOKI_URL")
	if lokiURL == "" {
		return zap.New(consoleCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	lokiHTTP = &http.Client{Timeout: 10 * time.Second}

	lokiConfig := zap.NewProductionEncoderConfig()
	lokiConfig.TimeKey = "ts"
	lokiConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lokiCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(lokiConfig),
		zapcore.AddSync(&lokiWriter{
			serviceName: serviceName,
			environment: environment,
		}),
		zapcore.InfoLevel,
	)

	core := zapcore.NewTee(consoleCore, lokiCore)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// lokiWriter implements zapcore.WriteSyncer for Loki
type lokiWriter struct {
	serviceName string
	environment string
}

func (w *lokiWriter) Write(p []byte) (n int, err error) {
	entry := make([]byte, len(p))
	copy(entry, p)

	// Ship asynchronously; a Loki outage must not stall request handling.
	go func() {
		labels := map[string]string{
			"service_name": w.serviceName,
			"environment":  w.environment,
			"job":          "shortlinks-api",
		}

		var logEntry map[string]interface{}
		if err := json.Unmarshal(entry, &logEntry); err == nil {
			if level, ok := logEntry["level"].(string); ok && level != "" {
				labels["level"] = level
			}
			if component, ok := logEntry["component"].(string); ok && component != "" {
				labels["component"] = component
			}
		}

		pushReq := lokiPushRequest{
			Streams: []lokiStream{
				{
					Stream: labels,
					Values: [][]string{
						{fmt.Sprintf("%d", time.Now().UnixNano()), string(entry)},
					},
				},
			},
		}

		jsonData, err := json.Marshal(pushReq)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal loki request: %v\n", err)
			return
		}

		resp, err := lokiHTTP.Post(lokiURL, "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to send log to loki: %v\n", err)
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			fmt.Fprintf(os.Stderr, "loki returned error: %d\n", resp.StatusCode)
		}
	}()

	return len(p), nil
}

func (w *lokiWriter) Sync() error {
	// Give in-flight async writes a moment to drain.
	time.Sleep(100 * time.Millisecond)
	return nil
}
