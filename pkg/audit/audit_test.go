package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// =============================================================================
// Event Tests
// =============================================================================

func TestU_NewEvent_Creation(t *testing.T) {
	event := NewEvent(EventEncodePSS, ResultSuccess)

	if event.EventType != EventEncodePSS {
		t.Errorf("expected EventType=%s, got %s", EventEncodePSS, event.EventType)
	}
	if event.Result != ResultSuccess {
		t.Errorf("expected Result=%s, got %s", ResultSuccess, event.Result)
	}
	if event.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
	if event.Actor.Type != "user" {
		t.Errorf("expected Actor.Type=user, got %s", event.Actor.Type)
	}
}

func TestU_NewEvent_UnknownUser(t *testing.T) {
	t.Setenv("USER", "")
	t.Setenv("USERNAME", "")

	event := NewEvent(EventSigVerify, ResultSuccess)
	if event.Actor.ID != "unknown" {
		t.Errorf("expected Actor.ID=unknown, got %s", event.Actor.ID)
	}
}

func TestU_Event_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		wantErr bool
	}{
		{
			name:    "[Unit] Validate: valid event",
			event:   NewEvent(EventSigSign, ResultSuccess),
			wantErr: false,
		},
		{
			name: "[Unit] Validate: missing event_type",
			event: &Event{
				Timestamp: "2026-01-15T10:00:00Z",
				Actor:     Actor{Type: "user", ID: "admin"},
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "[Unit] Validate: missing actor",
			event: &Event{
				EventType: EventSigSign,
				Timestamp: "2026-01-15T10:00:00Z",
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "[Unit] Validate: missing result",
			event: &Event{
				EventType: EventSigSign,
				Timestamp: "2026-01-15T10:00:00Z",
				Actor:     Actor{Type: "user", ID: "admin"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestU_Event_WithErrorKeepsReason(t *testing.T) {
	event := NewEvent(EventEncodePKCS1, ResultSuccess).
		WithError(errors.New("data too long")).
		WithContext(Context{Hash: "SHA256", ModulusBits: 512})

	if event.Result != ResultFailure {
		t.Errorf("expected Result=%s, got %s", ResultFailure, event.Result)
	}
	want := Context{Hash: "SHA256", ModulusBits: 512, Reason: "data too long"}
	if diff := cmp.Diff(want, event.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestU_Event_CanonicalJSON(t *testing.T) {
	event := NewEvent(EventSigConvert, ResultSuccess).
		WithObject(Object{Type: "signature"})
	event.HashPrev = GenesisHash
	event.Hash = "sha256:ignored"

	canonical, err := event.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	if strings.Contains(string(canonical), `"hash":`) {
		t.Error("CanonicalJSON should not contain hash field")
	}

	var parsed map[string]any
	if err := json.Unmarshal(canonical, &parsed); err != nil {
		t.Errorf("CanonicalJSON produced invalid JSON: %v", err)
	}
}

// =============================================================================
// FileWriter Tests
// =============================================================================

func TestU_FileWriter_Write(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	writer, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer func() { _ = writer.Close() }()

	event1 := NewEvent(EventEncodePSS, ResultSuccess)
	if err := writer.Write(event1); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if event1.HashPrev != GenesisHash {
		t.Errorf("First event HashPrev = %s, want %s", event1.HashPrev, GenesisHash)
	}
	if !strings.HasPrefix(event1.Hash, HashPrefix) {
		t.Errorf("Hash should start with %s, got %s", HashPrefix, event1.Hash)
	}

	event2 := NewEvent(EventSigVerify, ResultFailure)
	if err := writer.Write(event2); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if event2.HashPrev != event1.Hash {
		t.Errorf("Second event HashPrev = %s, want %s", event2.HashPrev, event1.Hash)
	}
	if writer.LastHash() != event2.Hash {
		t.Errorf("LastHash() = %s, want %s", writer.LastHash(), event2.Hash)
	}
	if writer.Path() != logPath {
		t.Errorf("Path() = %s, want %s", writer.Path(), logPath)
	}
}

func TestU_FileWriter_Append(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	w1, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if err := w1.Write(NewEvent(EventSigSign, ResultSuccess)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	last := w1.LastHash()
	_ = w1.Close()

	w2, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() reopen error = %v", err)
	}
	defer func() { _ = w2.Close() }()

	if w2.LastHash() != last {
		t.Errorf("reopened LastHash() = %s, want %s", w2.LastHash(), last)
	}
	if err := w2.Write(NewEvent(EventSigVerify, ResultSuccess)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	n, err := VerifyChain(logPath)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if n != 2 {
		t.Errorf("VerifyChain() = %d events, want 2", n)
	}
}

func TestU_FileWriter_WriteAfterClose(t *testing.T) {
	writer, err := NewFileWriter(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err = writer.Write(NewEvent(EventSigSign, ResultSuccess))
	if !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Expected ErrWriterClosed, got %v", err)
	}
}

func TestU_FileWriter_InvalidEvent(t *testing.T) {
	writer, err := NewFileWriter(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer func() { _ = writer.Close() }()

	if err := writer.Write(&Event{}); err == nil {
		t.Error("Expected error for invalid event")
	}
	if writer.LastHash() != GenesisHash {
		t.Errorf("failed write must not advance the chain, got %s", writer.LastHash())
	}
}

func TestU_FileWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	writer, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := writer.Write(NewEvent(EventSigVerify, ResultSuccess)); err != nil {
				t.Errorf("Write() error = %v", err)
			}
		}()
	}
	wg.Wait()
	_ = writer.Close()

	n, err := VerifyChain(logPath)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if n != 20 {
		t.Errorf("VerifyChain() = %d events, want 20", n)
	}
}

func TestU_FileWriter_CorruptExistingLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(logPath, []byte("{\"event_type\":\"SIG_SIGN\"}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileWriter(logPath); err == nil {
		t.Error("Expected error for a last event without hash")
	}

	if err := os.WriteFile(logPath, []byte("not json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileWriter(logPath); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

// =============================================================================
// VerifyChain Tests
// =============================================================================

func TestU_VerifyChain_Tampering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	writer, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	for _, alg := range []string{"SHA256withRSA", "SHA384withECDSA", "Ed25519"} {
		event := NewEvent(EventSigVerify, ResultSuccess).WithContext(Context{Algorithm: alg})
		if err := writer.Write(event); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	_ = writer.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "SHA384withECDSA", "SHA384withPlainECDSA", 1)
	if err := os.WriteFile(logPath, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	n, err := VerifyChain(logPath)
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %v", err)
	}
	if chainErr.Line != 2 || n != 1 {
		t.Errorf("Expected failure at line 2 after 1 valid event, got line %d after %d", chainErr.Line, n)
	}
}

func TestU_VerifyChain_BlankLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	writer, err := NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if err := writer.Write(NewEvent(EventSigConvert, ResultSuccess)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_ = writer.Close()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("\n   \n")
	_ = f.Close()

	n, err := VerifyChain(logPath)
	if err != nil || n != 1 {
		t.Errorf("VerifyChain() = %d, %v; want 1, nil", n, err)
	}
}

func TestU_VerifyChain_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if n, err := VerifyChain(empty); err != nil || n != 0 {
		t.Errorf("VerifyChain(empty) = %d, %v", n, err)
	}
	if _, err := VerifyChain(filepath.Join(dir, "missing.jsonl")); err == nil {
		t.Error("Expected error for missing file")
	}
}

// =============================================================================
// MultiWriter Tests
// =============================================================================

type failingWriter struct{ NopWriter }

var errWriteFailed = errors.New("write failed")

func (failingWriter) Write(*Event) error { return errWriteFailed }
func (failingWriter) Close() error       { return errWriteFailed }

func TestU_MultiWriter(t *testing.T) {
	if err := NewMultiWriter(NopWriter{}, failingWriter{}).Write(NewEvent(EventSigSign, ResultSuccess)); !errors.Is(err, errWriteFailed) {
		t.Errorf("Expected write failure, got %v", err)
	}
	if err := NewMultiWriter(NopWriter{}, failingWriter{}).Close(); !errors.Is(err, errWriteFailed) {
		t.Errorf("Expected close failure, got %v", err)
	}
	if h := NewMultiWriter().LastHash(); h != GenesisHash {
		t.Errorf("empty MultiWriter LastHash() = %s", h)
	}
}

// =============================================================================
// Global Audit Tests
// =============================================================================

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid event line %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func TestU_GlobalAudit_Helpers(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	t.Setenv(EnvAuditLog, logPath)
	if err := InitFromEnv(""); err != nil {
		t.Fatalf("InitFromEnv() error = %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	if !Enabled() {
		t.Fatal("audit should be enabled")
	}

	opErr := errors.New("verification failed")
	steps := []error{
		LogEncode(EventEncodePSS, "SHA256", 2048, 32, nil),
		LogEncode(EventEncodePKCS1, "SHA512", 512, 0, errors.New("data too long")),
		LogConvert("plain", 256, 64, nil),
		LogSign(EventSigSign, "key.pem", "SHA256withRSA", nil),
		LogVerify(EventSigVerify, "EC", "SHA256withECDSA", opErr),
		LogVerify(EventCOSEVerify, "RSA", "PS256", nil),
		LogKeyAccessed("key.pem", "", nil),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("helper %d error = %v", i, err)
		}
	}
	_ = Close()

	events := readEvents(t, logPath)
	if len(events) != len(steps) {
		t.Fatalf("Expected %d events, got %d", len(steps), len(events))
	}
	if events[1].Result != ResultFailure || events[1].Context.Reason != "data too long" {
		t.Errorf("encode failure not recorded: %+v", events[1])
	}
	if events[4].Result != ResultFailure || events[4].Context.KeyFamily != "EC" {
		t.Errorf("verify failure not recorded: %+v", events[4])
	}
	if n, err := VerifyChain(logPath); err != nil || n != len(steps) {
		t.Errorf("VerifyChain() = %d, %v", n, err)
	}
}

func TestU_GlobalAudit_Disabled(t *testing.T) {
	if err := Init(nil); err != nil {
		t.Fatalf("Init(nil) error = %v", err)
	}
	if Enabled() {
		t.Error("audit should be disabled")
	}
	if err := LogSign(EventSigSign, "k", "Ed25519", nil); err != nil {
		t.Errorf("Log with NopWriter error = %v", err)
	}
	if err := InitFile(""); err != nil {
		t.Errorf("InitFile(\"\") error = %v", err)
	}
	if err := Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestU_GlobalAudit_MustLogError(t *testing.T) {
	if err := Init(failingWriter{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Init(nil) })

	err := MustLog(NewEvent(EventSigSign, ResultSuccess))
	if !errors.Is(err, errWriteFailed) {
		t.Errorf("Expected wrapped write failure, got %v", err)
	}
}

func TestU_GlobalAudit_InitFileBadPath(t *testing.T) {
	if err := InitFile(filepath.Join(t.TempDir(), "missing", "dir", "audit.jsonl")); err == nil {
		t.Error("Expected error for unwritable path")
	}
}
