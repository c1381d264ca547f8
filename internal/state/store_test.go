package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ixado/ixado/internal/model"
)

func TestInitializeAndRead(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	st, err := s.Initialize("demo", dir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if st.ProjectName != "demo" {
		t.Fatalf("projectName = %q", st.ProjectName)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ProjectName != "demo" || len(got.Phases) != 0 {
		t.Fatalf("got: %+v", got)
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected no .tmp residue, stat err = %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Read()
	se, ok := err.(*Error)
	if !ok || se.Code != ErrFileNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteRejectsUnknownTopLevelKey(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(`{"projectName":"x","rootDir":"/r","phases":[],"createdAt":"2020-01-01T00:00:00Z","updatedAt":"2020-01-01T00:00:00Z","bogus":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Read()
	se, ok := err.(*Error)
	if !ok || se.Code != ErrSchemaViolation {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteNoTmpResidueAfterSuccess(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	st, err := s.Initialize("demo", dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(st); err != nil {
		t.Fatalf("Write: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("tmp residue: %v", matches)
	}
}

func TestUpdatedAtMonotonic(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	st, err := s.Initialize("demo", dir)
	if err != nil {
		t.Fatal(err)
	}
	st.UpdatedAt = time.Now().UTC().Add(time.Hour) // simulate a clock behind another writer
	next, err := s.Write(st)
	if err != nil {
		t.Fatal(err)
	}
	if !next.UpdatedAt.After(st.UpdatedAt.Add(-time.Hour)) {
		t.Fatalf("updatedAt did not advance: %v", next.UpdatedAt)
	}
}

func TestResolveActivePhaseStrict(t *testing.T) {
	empty := &model.ProjectState{}
	if _, err := ResolveActivePhaseStrict(empty); err == nil {
		t.Fatal("expected error")
	} else if se, ok := err.(*Error); !ok || se.Code != ErrNoPhases {
		t.Fatalf("err = %v", err)
	}

	two := &model.ProjectState{Phases: []model.Phase{{ID: "a"}, {ID: "b"}}}
	if _, err := ResolveActivePhaseStrict(two); err == nil {
		t.Fatal("expected error when activePhaseId is unset")
	} else if se, ok := err.(*Error); !ok || se.Code != ErrActivePhaseIDMissing {
		t.Fatalf("err = %v", err)
	}

	missing := "zzz"
	two.ActivePhaseID = &missing
	if _, err := ResolveActivePhaseStrict(two); err == nil {
		t.Fatal("expected error")
	} else if se, ok := err.(*Error); !ok || se.Code != ErrActivePhaseIDNotFound {
		t.Fatalf("err = %v", err)
	}

	valid := "b"
	two.ActivePhaseID = &valid
	p, err := ResolveActivePhaseStrict(two)
	if err != nil {
		t.Fatalf("ResolveActivePhaseStrict: %v", err)
	}
	if p.ID != "b" {
		t.Fatalf("resolved wrong phase: %+v", p)
	}
}
