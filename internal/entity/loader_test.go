package entity

import (
	"testing"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadFile("testdata/company/definition.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Entity != "company" {
		t.Errorf("Entity = %q, want company", def.Entity)
	}
	if def.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", def.Version)
	}
	if def.Backend.ServiceID != "admin-svc" {
		t.Errorf("Backend.ServiceID = %q, want admin-svc", def.Backend.ServiceID)
	}
	if def.Backend.Encoding != "multipart" {
		t.Errorf("Backend.Encoding = %q, want multipart", def.Backend.Encoding)
	}
	if !def.Backend.MethodOverride {
		t.Error("Backend.MethodOverride should be true")
	}
	if len(def.Fields) != 5 {
		t.Fatalf("Fields = %d, want 5", len(def.Fields))
	}
	if def.Fields[1].EffectiveWireKey() != "gst_no" {
		t.Errorf("gst field wire key = %q, want gst_no", def.Fields[1].EffectiveWireKey())
	}
	if len(def.Groups) != 1 || def.Groups[0].Key != "offices" {
		t.Fatalf("Groups = %+v, want one offices group", def.Groups)
	}
	if len(def.Groups[0].DateRanges) != 1 {
		t.Errorf("DateRanges = %d, want 1", len(def.Groups[0].DateRanges))
	}
	if len(def.Lookups) != 1 || def.Lookups[0].ID != "countries" {
		t.Fatalf("Lookups = %+v, want countries", def.Lookups)
	}
	if def.Lookups[0].Cache == nil || def.Lookups[0].Cache.TTL != "15m" {
		t.Errorf("countries cache = %+v, want ttl 15m", def.Lookups[0].Cache)
	}
	if def.View.PageSize != 25 {
		t.Errorf("View.PageSize = %d, want 25", def.View.PageSize)
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != "testdata/company/definition.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadAll([]string{"testdata/company"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("LoadAll() returned %d definitions, want 1", len(defs))
	}
	if defs[0].Entity != "company" {
		t.Errorf("Entity = %q, want company", defs[0].Entity)
	}
}

func TestLoader_LoadAll_invalid_dir(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/nonexistent"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestLoader_LoadAll_invalid_yaml(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadAll([]string{"testdata/invalid"})
	if err == nil {
		t.Fatal("LoadAll() with invalid YAML should return error")
	}
}

func TestLoader_Checksum_deterministic(t *testing.T) {
	l := NewLoader()
	def1, _ := l.LoadFile("testdata/company/definition.yaml")
	def2, _ := l.LoadFile("testdata/company/definition.yaml")
	if def1.Checksum != def2.Checksum {
		t.Error("Checksum should be deterministic")
	}
}
