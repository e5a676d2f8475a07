package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterAndTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("node", true)
	IncStart("node", false)
	IncKill(true)
	ObserveValidation("node", 0.5)
	IncStatusCorrection("running", "stopped")
	SetRecords(map[string]int{"running": 2, "failed": 1})

	path := filepath.Join(t.TempDir(), "localnet.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`localnet_service_starts_total{result="success",role="node"} 1`,
		`localnet_service_starts_total{result="failure",role="node"} 1`,
		`localnet_service_kills_total{result="success"} 1`,
		"localnet_service_validation_duration_seconds_count",
		`localnet_registry_status_corrections_total{from="running",to="stopped"} 1`,
		`localnet_registry_records{status="running"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	if err := WriteTextfile("", prometheus.NewRegistry()); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}
