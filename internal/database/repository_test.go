package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSourceFileRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dbCtx := setupTestDB(t)
	repo := NewSourceFileRepository(dbCtx)

	acq := time.Date(2020, 1, 15, 9, 30, 15, 0, time.UTC)
	err := repo.Insert(ctx, SourceFileRecord{
		FileID:    "0000001",
		RelPath:   "./study/001-01/T1_MPRAGE",
		FileDate:  acq.Add(time.Hour),
		AcqDate:   acq,
		SubjectID: "001",
		SessionID: "01",
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	byPath, err := repo.FindByRelPath(ctx, "./study/001-01/T1_MPRAGE")
	if err != nil {
		t.Fatalf("FindByRelPath returned error: %v", err)
	}
	if byPath == nil || byPath.FileID != "0000001" {
		t.Fatalf("expected record 0000001, got %#v", byPath)
	}
	if !byPath.AcqDate.Equal(acq) {
		t.Fatalf("expected acquisition date %v, got %v", acq, byPath.AcqDate)
	}
	if byPath.BIDSName != "" {
		t.Fatalf("expected empty bids name before naming, got %q", byPath.BIDSName)
	}

	if err := repo.UpdateBIDSName(ctx, "0000001", "anat", "sub-001_ses-01_run-01_T1w"); err != nil {
		t.Fatalf("UpdateBIDSName returned error: %v", err)
	}

	byID, err := repo.FindByID(ctx, "0000001")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if byID.BIDSName != "sub-001_ses-01_run-01_T1w" || byID.ModalityType != "anat" {
		t.Fatalf("unexpected record after update: %#v", byID)
	}

	missing, err := repo.FindByID(ctx, "9999999")
	if err != nil {
		t.Fatalf("FindByID on missing id returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing id")
	}

	err = repo.UpdateBIDSName(ctx, "9999999", "anat", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSourceFileRepositoryRejectsDuplicatePath(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceFileRepository(setupTestDB(t))

	rec := SourceFileRecord{FileID: "0000001", RelPath: "./study/001/a.PAR", SubjectID: "001"}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	rec.FileID = "0000002"
	if err := repo.Insert(ctx, rec); err == nil {
		t.Fatalf("expected unique constraint violation")
	}
}

func TestSourceFileRepositoryListFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceFileRepository(setupTestDB(t))

	records := []SourceFileRecord{
		{FileID: "0000001", RelPath: "./s/001-01/a", SubjectID: "001", SessionID: "01"},
		{FileID: "0000002", RelPath: "./s/001-02/b", SubjectID: "001", SessionID: "02"},
		{FileID: "0000003", RelPath: "./s/002/c", SubjectID: "002"},
	}
	for _, rec := range records {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	all, err := repo.List(ctx, SourceFileFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 3 || all[0].FileID != "0000001" {
		t.Fatalf("expected 3 ordered records, got %#v", all)
	}

	sub, err := repo.List(ctx, SourceFileFilter{SubjectID: "001"})
	if err != nil {
		t.Fatalf("List by subject returned error: %v", err)
	}
	if len(sub) != 2 {
		t.Fatalf("expected 2 records for subject 001, got %d", len(sub))
	}

	ses, err := repo.List(ctx, SourceFileFilter{SubjectID: "001", SessionID: "02"})
	if err != nil {
		t.Fatalf("List by session returned error: %v", err)
	}
	if len(ses) != 1 || ses[0].FileID != "0000002" {
		t.Fatalf("expected record 0000002, got %#v", ses)
	}
}

func TestRepositoryWithoutContext(t *testing.T) {
	repo := NewSourceFileRepository(nil)
	if _, err := repo.Count(context.Background()); err == nil {
		t.Fatalf("expected error without database context")
	}
}

func TestIsConstraintError(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceFileRepository(setupTestDB(t))

	if err := repo.Insert(ctx, SourceFileRecord{FileID: "0000001", RelPath: "./a", SubjectID: "001"}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	err := repo.Insert(ctx, SourceFileRecord{FileID: "0000001", RelPath: "./b", SubjectID: "001"})
	if !IsConstraintError(err) {
		t.Fatalf("expected primary key violation, got %v", err)
	}
	if IsConstraintError(errors.New("other")) {
		t.Fatalf("plain errors are not constraint violations")
	}
}
