package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	coreGrpc "github.com/msto63/hive/pkg/core/grpc"
	"github.com/msto63/hive/pkg/core/health"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

var (
	statusJSON    bool
	statusGateway string
	statusGRPC    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	Long: `Query the gateway health endpoint and the gRPC health service.

Addresses default to the ports in the config file on localhost.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the gRPC health responses as JSON")
	statusCmd.Flags().StringVar(&statusGateway, "gateway", "", "gateway address (host:port)")
	statusCmd.Flags().StringVar(&statusGRPC, "grpc", "", "gRPC address (host:port)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if statusGateway == "" {
		statusGateway = fmt.Sprintf("localhost:%d", cfg.Gateway.Port)
	}
	if statusGRPC == "" {
		statusGRPC = fmt.Sprintf("localhost:%d", cfg.GRPC.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	services := []string{"", coreGrpc.ServicePrefix + "flight"}

	if statusJSON {
		return printGRPCHealthJSON(ctx, services)
	}

	fmt.Println("HIVE Status")
	fmt.Println("===========")
	fmt.Println()

	report, err := fetchHealth(ctx, statusGateway)
	if err != nil {
		fmt.Printf("  [-] Gateway %-20s - unreachable (%v)\n", statusGateway, err)
	} else {
		fmt.Printf("  [+] Gateway %-20s - %s (%s %s, up %s)\n",
			statusGateway, report.Status, report.Service, report.Version, report.Uptime.Truncate(time.Second))
		for _, c := range report.Checks {
			fmt.Printf("      %s %-12s %-9s %s\n", statusIcon(c.Status), c.Name, c.Status, c.Message)
		}
	}

	fmt.Println()
	for _, svc := range services {
		name := svc
		if name == "" {
			name = "(overall)"
		}
		resp, err := coreGrpc.CheckHealth(ctx, coreGrpc.DefaultClientConfig(statusGRPC), svc)
		if err != nil {
			fmt.Printf("  [-] gRPC %-12s - %v\n", name, err)
			continue
		}
		fmt.Printf("  [+] gRPC %-12s - %s\n", name, resp.GetStatus())
	}

	return nil
}

func printGRPCHealthJSON(ctx context.Context, services []string) error {
	opts := protojson.MarshalOptions{Multiline: true, Indent: "  ", EmitUnpopulated: true}
	for _, svc := range services {
		resp, err := coreGrpc.CheckHealth(ctx, coreGrpc.DefaultClientConfig(statusGRPC), svc)
		if err != nil {
			printError("gRPC health check failed", err)
			return err
		}
		data, err := opts.Marshal(resp)
		if err != nil {
			return err
		}
		fmt.Printf("{\"service\": %q, \"response\": %s}\n", svc, strings.TrimSpace(string(data)))
	}
	return nil
}

func fetchHealth(ctx context.Context, address string) (*health.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+"/api/v1/health", nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	return &report, nil
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "[+]"
	case health.StatusDegraded, health.StatusUnknown:
		return "[~]"
	default:
		return "[-]"
	}
}
