package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Test case with empty DataSource DNS
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
		HubSoft: HubSoftConfig{
			BaseUrl: "https://api.hubsoft.example",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}
	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
		HubSoft: HubSoftConfig{
			BaseUrl: "https://api.hubsoft.example",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}
	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "hubsoft base URL is required" {
		t.Errorf("Expected hubsoft base URL required error, got %v", err)
	}

	// Test case with all required fields filled, expect no error
	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
		HubSoft: HubSoftConfig{
			BaseUrl: "https://api.hubsoft.example/",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.HubSoft.BaseUrl != "https://api.hubsoft.example" {
		t.Errorf("Expected trailing slash trimmed from base URL, got %s", cnf.HubSoft.BaseUrl)
	}

	// Test default port setting
	cnf.Server.Port = ""
	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
}

func TestResilienceDefaults(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		HubSoft:    HubSoftConfig{BaseUrl: "https://api.hubsoft.example"},
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cnf.HubSoft.RenewalBufferMin != 5 {
		t.Errorf("Expected renewal buffer default of 5 minutes, got %d", cnf.HubSoft.RenewalBufferMin)
	}
	if cnf.HubSoftLimit.RequestsPerMinute != 30 {
		t.Errorf("Expected outbound ceiling default of 30 rpm, got %d", cnf.HubSoftLimit.RequestsPerMinute)
	}
	if cnf.HubSoftLimit.MaxConcurrent != 1 {
		t.Errorf("Expected max concurrent default of 1, got %d", cnf.HubSoftLimit.MaxConcurrent)
	}
	if cnf.CacheTTL.ContractStatusMin != 240 {
		t.Errorf("Expected contract status TTL default of 240 minutes, got %d", cnf.CacheTTL.ContractStatusMin)
	}
	if cnf.Monitor.FlagAfterCycles != 10 {
		t.Errorf("Expected flag-after-cycles default of 10, got %d", cnf.Monitor.FlagAfterCycles)
	}
	if cnf.Migration.IntegrityThreshold != 0.95 {
		t.Errorf("Expected integrity threshold default of 0.95, got %f", cnf.Migration.IntegrityThreshold)
	}
	if len(cnf.Migration.CriticalTables) != 1 || cnf.Migration.CriticalTables[0] != "tickets" {
		t.Errorf("Expected default critical tables [tickets], got %v", cnf.Migration.CriticalTables)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "hubsync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name()) // Clean up after the test

	// Sample configuration to write to the temp file
	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
		HubSoft: HubSoftConfig{
			BaseUrl: "https://api.hubsoft.example",
		},
	}
	data, err := json.Marshal(sampleConfig)
	if err != nil {
		t.Fatalf("Unable to marshal sample config: %v", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Unable to close temporary file: %v", err)
	}

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile returned error: %v", err)
	}

	fetched, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.ProjectName != "Temp Project" {
		t.Errorf("Expected project name 'Temp Project', got %s", fetched.ProjectName)
	}
	if fetched.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, fetched.Server.Port)
	}
}
