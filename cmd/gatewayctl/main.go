package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/gateway"
	"github.com/aescanero/dago-task-gateway/internal/normalize"
	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	gatewayURL string
	timeout    time.Duration
	rawOutput  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operate a task gateway and its model workers",
		Long: `gatewayctl sends prompts to a running task gateway, reads its health
	and talks to individual model workers directly for troubleshooting.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "http://localhost:9000", "gateway base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&rawOutput, "json", false, "print raw JSON instead of a summary")

	rootCmd.AddCommand(genCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func genCmd() *cobra.Command {
	var maxTokens int
	var temperature float64

	cmd := &cobra.Command{
		Use:   "gen [prompt]",
		Short: "Route a prompt through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := gateway.GenRequest{Prompt: strings.Join(args, " ")}
			if cmd.Flags().Changed("max-tokens") {
				body.MaxTokens = &maxTokens
			}
			if cmd.Flags().Changed("temperature") {
				body.Temperature = &temperature
			}

			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}

			status, resp, err := call(cmd.Context(), http.MethodPost, "/gen", data)
			if err != nil {
				return err
			}
			if rawOutput {
				fmt.Println(strings.TrimSpace(string(resp)))
				return nil
			}
			if status != http.StatusOK {
				return fmt.Errorf("gateway returned %d: %s", status, errorMessage(resp))
			}

			var env gateway.Envelope
			if err := json.Unmarshal(resp, &env); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Println(renderEnvelope(env))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", 150, "override max_tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.1, "override temperature")

	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway health and readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, resp, err := call(cmd.Context(), http.MethodGet, "/health", nil)
			if err != nil {
				return err
			}
			readyStatus, _, err := call(cmd.Context(), http.MethodGet, "/ready", nil)
			if err != nil {
				return err
			}
			if rawOutput {
				fmt.Println(strings.TrimSpace(string(resp)))
				return nil
			}

			var h gateway.HealthResponse
			if err := json.Unmarshal(resp, &h); err != nil {
				return fmt.Errorf("failed to decode health: %w", err)
			}
			fmt.Println(renderHealth(h, readyStatus == http.StatusOK))
			return nil
		},
	}
}

func probeCmd() *cobra.Command {
	var credential string
	var prompt string

	cmd := &cobra.Command{
		Use:   "probe [address]",
		Short: "Check a model worker directly, optionally running one prompt",
		Long: `Connects to a worker with its credential and runs a health check.
	With --prompt the worker is also asked to route the prompt and both the raw
	output and the normalized decision are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if credential == "" {
				credential = os.Getenv("WORKER_CREDENTIAL")
			}
			if credential == "" {
				return fmt.Errorf("a worker credential is required (--credential or WORKER_CREDENTIAL)")
			}

			conn, err := workerrpc.Dial(address, credential)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			check, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Println(renderProbe(address, check.Status.String(), time.Since(start)))

			if prompt == "" {
				return nil
			}

			req := domain.InferenceRequest{
				Prompt:      prompt,
				MaxTokens:   150,
				Temperature: 0.1,
				TopP:        0.8,
				Stop:        []string{"\n\n", "Question:"},
			}
			resp, err := workerrpc.NewGeneratorClient(conn).Generate(ctx, workerrpc.NewGenerateRequest(req))
			if err != nil {
				return fmt.Errorf("generate failed: %w", err)
			}

			raw := domain.RawOutput{Text: resp.Text}
			if resp.Error != "" {
				raw.Failure = &domain.Failure{Kind: domain.FailureWorker, Message: resp.Error}
			}

			n, err := normalize.New()
			if err != nil {
				return err
			}
			result := n.Normalize(raw, prompt)
			fmt.Println(renderTrial(resp.Text, resp.Error, result))
			return nil
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "worker shared secret (default $WORKER_CREDENTIAL)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt to run on the worker")

	return cmd
}

func call(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(gatewayURL, "/")+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func errorMessage(body []byte) string {
	var e gateway.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
