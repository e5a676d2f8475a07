package registry

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cocoonstack/localnet/types"
)

func newRecord(name string, status types.NodeStatus) types.NodeRecord {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	return types.NodeRecord{
		ServiceName: name,
		Role:        types.RoleNode,
		Status:      status,
		PID:         1234,
		PeerID:      "12D3KooW" + name,
		Port:        12000,
		RPCPort:     13000,
		DataDir:     "/data/" + name,
		LogDir:      "/logs/" + name,
		BinPath:     "/usr/local/bin/node",
		BinVersion:  "0.1.0",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- Load / Save ---

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.All()) != 0 || reg.Active() {
		t.Errorf("expected empty registry, got %d records", len(reg.All()))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := New(path)
	reg.SetBootstrap("net-1", []string{"/ip4/127.0.0.1/udp/12000/quic-v1/p2p/12D3KooWa"})
	for _, name := range []string{"node-1", "node-2", "faucet"} {
		rec := newRecord(name, types.NodeStatusRunning)
		if name == "faucet" {
			rec.Role = types.RoleFaucet
		}
		if err := reg.Insert(rec); err != nil {
			t.Fatalf("Insert %s: %v", name, err)
		}
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(reg.All(), loaded.All()) {
		t.Errorf("round trip mismatch:\nsaved  %+v\nloaded %+v", reg.All(), loaded.All())
	}
	id, peers := loaded.Bootstrap()
	if id != "net-1" || len(peers) != 1 {
		t.Errorf("bootstrap metadata lost: %q %v", id, peers)
	}
}

func TestLoad_IgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	data := `{"version":9,"future_field":{"x":1},"nodes":[{"service_name":"node-1","status":"running","role":"node","new_thing":"y"}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec, ok := reg.Find("node-1")
	if !ok || rec.Status != types.NodeStatusRunning {
		t.Errorf("expected node-1 running, got %+v (found=%v)", rec, ok)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	_ = os.WriteFile(path, []byte("{truncated"), 0o600)
	_, err := Load(path)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "load" {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
}

func TestSave_UnwritableDir(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "missing", "registry.json"))
	_ = reg.Insert(newRecord("node-1", types.NodeStatusAdded))
	err := reg.Save()
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "save" {
		t.Fatalf("expected save PersistenceError, got %v", err)
	}
}

// --- Insert / Update / Upsert ---

func TestInsert_DuplicateName(t *testing.T) {
	reg := New("")
	if err := reg.Insert(newRecord("node-1", types.NodeStatusAdded)); err != nil {
		t.Fatal(err)
	}
	err := reg.Insert(newRecord("node-1", types.NodeStatusStarting))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if len(reg.All()) != 1 {
		t.Errorf("duplicate insert changed the registry")
	}
}

func TestUpdate_ExistingName(t *testing.T) {
	reg := New("")
	_ = reg.Insert(newRecord("node-1", types.NodeStatusAdded))

	rec, _ := reg.Find("node-1")
	if err := rec.Transition(types.NodeStatusStarting); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := reg.Find("node-1")
	if got.Status != types.NodeStatusStarting {
		t.Errorf("status = %s, want starting", got.Status)
	}

	if err := reg.Update(newRecord("node-9", types.NodeStatusAdded)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	reg := New("")
	if err := reg.Upsert(newRecord("node-1", types.NodeStatusAdded)); err != nil {
		t.Fatalf("Upsert insert: %v", err)
	}
	if err := reg.Upsert(newRecord("node-1", types.NodeStatusStarting)); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	all := reg.All()
	if len(all) != 1 || all[0].Status != types.NodeStatusStarting {
		t.Errorf("unexpected records: %+v", all)
	}
}

func TestFind_ReturnsDetachedCopy(t *testing.T) {
	reg := New("")
	_ = reg.Insert(newRecord("node-1", types.NodeStatusRunning))
	rec, _ := reg.Find("node-1")
	rec.PID = 99
	again, _ := reg.Find("node-1")
	if again.PID == 99 {
		t.Error("mutating a found record leaked into the registry")
	}
}

// --- Remove / Prune / Delete ---

func TestRemoveAndPrune(t *testing.T) {
	reg := New("")
	_ = reg.Insert(newRecord("node-1", types.NodeStatusRunning))
	_ = reg.Insert(newRecord("node-2", types.NodeStatusRemoved))
	_ = reg.Insert(newRecord("node-3", types.NodeStatusRemoved))

	if n := reg.Prune(); n != 2 {
		t.Errorf("Prune = %d, want 2", n)
	}
	if err := reg.Remove("node-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := reg.Remove("node-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if reg.Active() {
		t.Error("expected no active records")
	}
}

func TestCount(t *testing.T) {
	reg := New("")
	_ = reg.Insert(newRecord("node-1", types.NodeStatusRunning))
	_ = reg.Insert(newRecord("node-2", types.NodeStatusRemoved))
	f := newRecord("faucet", types.NodeStatusRunning)
	f.Role = types.RoleFaucet
	_ = reg.Insert(f)
	if got := reg.Count(types.RoleNode); got != 1 {
		t.Errorf("Count(node) = %d, want 1", got)
	}
	if got := reg.Count(types.RoleFaucet); got != 1 {
		t.Errorf("Count(faucet) = %d, want 1", got)
	}
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := New(path)
	_ = reg.Insert(newRecord("node-1", types.NodeStatusRunning))
	if err := reg.Save(); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(); err == nil {
		t.Fatal("expected Delete to refuse while a record is running")
	}

	rec, _ := reg.Find("node-1")
	rec.Status = types.NodeStatusRemoved
	_ = reg.Update(rec)
	if err := reg.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("registry file still present: %v", err)
	}
	// Deleting an already-deleted registry is a no-op.
	if err := reg.Delete(); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
