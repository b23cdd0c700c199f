package archive

import (
	"strings"
	"testing"

	"github.com/jittakal/datalogger/internal/config/dto"
)

// Azurite emulator defaults.
const (
	emulatorEndpoint    = "http://127.0.0.1:10000/devstoreaccount1"
	emulatorAccountName = "devstoreaccount1"
	emulatorAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

func TestAzureConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  dto.AzureConfig
		wantErr bool
	}{
		{
			name: "valid config with account key",
			config: dto.AzureConfig{
				AccountName: "testaccount",
				AccountKey:  "dGVzdGtleQ==",
				Container:   "test-container",
			},
			wantErr: false,
		},
		{
			name: "empty account name",
			config: dto.AzureConfig{
				AccountKey: "dGVzdGtleQ==",
				Container:  "test-container",
			},
			wantErr: true,
		},
		{
			name: "empty container name",
			config: dto.AzureConfig{
				AccountName: "testaccount",
				AccountKey:  "dGVzdGtleQ==",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAzureConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		config   dto.AzureConfig
		contains []string
	}{
		{
			name:   "public cloud",
			config: dto.AzureConfig{AccountName: "acct", AccountKey: "dGVzdGtleQ=="},
			contains: []string{
				"AccountName=acct",
				"AccountKey=dGVzdGtleQ==",
				"EndpointSuffix=core.windows.net",
			},
		},
		{
			name: "emulator",
			config: dto.AzureConfig{
				AccountName: emulatorAccountName,
				AccountKey:  emulatorAccountKey,
				Endpoint:    emulatorEndpoint,
			},
			contains: []string{
				"AccountName=" + emulatorAccountName,
				"BlobEndpoint=" + emulatorEndpoint,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AzureConnectionString(tt.config)
			for _, part := range tt.contains {
				if !strings.Contains(got, part) {
					t.Errorf("connection string %q missing %q", got, part)
				}
			}
		})
	}
}

func TestNewAzureArchiver_Emulator(t *testing.T) {
	a, err := NewAzureArchiver(dto.AzureConfig{
		AccountName: emulatorAccountName,
		AccountKey:  emulatorAccountKey,
		Container:   "backups",
		Endpoint:    emulatorEndpoint,
		BasePath:    "datalogger",
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewAzureArchiver() error = %v", err)
	}
	defer a.Close()

	if a.Name() != "azure" {
		t.Errorf("Name() = %q, want azure", a.Name())
	}
}
