package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"vol-core/pkg/broker"
	"vol-core/pkg/config"
	"vol-core/pkg/db"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

func main() {
	fmt.Println("🏥 vol-core Health Check")
	fmt.Println("========================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{Overall: "HEALTHY"}

	// config.Load reads .env itself.
	cfg, cfgStatus := checkConfig()
	report.Services = append(report.Services, cfgStatus)
	if cfg != nil {
		report.Services = append(report.Services, checkDatabase(ctx, cfg))
		report.Services = append(report.Services, checkBroker(ctx, cfg))
		if cfg.EnableAPI {
			report.Services = append(report.Services, checkAPIServer(ctx, cfg))
		}
	}

	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" {
			report.Overall = "DEGRADED"
		}
	}

	fmt.Println("Results:")
	fmt.Println("--------")
	for _, svc := range report.Services {
		statusIcon := "✓"
		if svc.Status == "UNHEALTHY" {
			statusIcon = "✗"
		} else if svc.Status == "DEGRADED" {
			statusIcon = "⚠"
		}
		fmt.Printf("%s %-20s %s %s\n", statusIcon, svc.Service, svc.Status, svc.Message)
	}

	fmt.Println()
	fmt.Printf("Overall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
	}

	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func newStatus(service string) HealthStatus {
	return HealthStatus{Service: service, Status: "HEALTHY", Timestamp: time.Now()}
}

func checkConfig() (*config.Config, HealthStatus) {
	status := newStatus("Configuration")
	cfg, err := config.Load()
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Failed to load: %v", err)
		return nil, status
	}
	status.Message = fmt.Sprintf("mode=%s broker=%s:%d", cfg.Mode, cfg.TWSHost, cfg.TWSPort)
	return cfg, status
}

// checkDatabase opens the store and reports how fresh the price series are.
func checkDatabase(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Database")

	database, err := db.New(cfg.DBPath)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Connection failed: %v", err)
		return status
	}
	defer database.Close()

	if err := database.DB.PingContext(ctx); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Ping failed: %v", err)
		return status
	}
	if err := db.ApplyMigrations(database); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Schema check failed: %v", err)
		return status
	}

	tickers, err := database.Series().ListTickers(ctx, broker.KindPrice)
	if err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("List tickers failed: %v", err)
		return status
	}
	if len(tickers) == 0 {
		status.Status = "DEGRADED"
		status.Message = "No price series stored yet"
		return status
	}

	stale := 0
	cutoff := time.Now().AddDate(0, 0, -7)
	for _, t := range tickers {
		last, ok, err := database.Series().MaxStoredDate(ctx, broker.KindPrice, t)
		if err != nil || !ok || last.Before(cutoff) {
			stale++
		}
	}
	status.Message = fmt.Sprintf("%d tickers, %d stale", len(tickers), stale)
	if stale > 0 {
		status.Status = "DEGRADED"
	}
	return status
}

func checkBroker(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Broker bridge")
	if cfg.UseMockFeed {
		status.Message = "Synthetic feed"
		return status
	}

	addr := net.JoinHostPort(cfg.TWSHost, strconv.Itoa(cfg.TWSPort))
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Not reachable at %s: %v", addr, err)
		return status
	}
	_ = conn.Close()
	status.Message = "Listening at " + addr
	return status
}

func checkAPIServer(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Status API")

	url := fmt.Sprintf("http://localhost:%s/health", cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("Not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}
	status.Message = "Running"
	return status
}
