package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

type stubBackup struct {
	outcome enums.BackupOutcome
	err     error
}

func (s stubBackup) Backup(ctx context.Context) (enums.BackupOutcome, error) {
	return s.outcome, s.err
}

type stubRestore struct {
	err   error
	calls int
}

func (s *stubRestore) Restore(ctx context.Context) error {
	s.calls++
	return s.err
}

type stubSummary struct{}

func (stubSummary) Summary() ledger.Summary {
	return ledger.Summary{}
}

func TestBackupNowReportsOutcome(t *testing.T) {
	resp := httptest.NewRecorder()
	BackupNow(stubBackup{outcome: enums.BackupOutcomeOffline}, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data["outcome"] != "offline" {
		t.Fatalf("unexpected outcome %q", envelope.Data["outcome"])
	}
}

func TestBackupNowRemoteFailure(t *testing.T) {
	runner := stubBackup{outcome: enums.BackupOutcomeFailed, err: pkgerrors.New(pkgerrors.CodeRemoteAPI, "upload failed")}
	resp := httptest.NewRecorder()
	BackupNow(runner, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", resp.Code)
	}
}

func TestBackupRestore(t *testing.T) {
	runner := &stubRestore{}
	resp := httptest.NewRecorder()
	BackupRestore(runner, stubSummary{}, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK || runner.calls != 1 {
		t.Fatalf("expected 200 and one call, got %d and %d", resp.Code, runner.calls)
	}

	runner = &stubRestore{err: pkgerrors.New(pkgerrors.CodeNotFound, "no backup for today")}
	resp = httptest.NewRecorder()
	BackupRestore(runner, stubSummary{}, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if msg := decodeError(t, resp).Error.Message; msg != "no backup for today" {
		t.Fatalf("unexpected message %q", msg)
	}
}
