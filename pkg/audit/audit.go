package audit

import (
	"fmt"
	"os"
	"sync"
)

// EnvAuditLog names the environment variable holding the audit log path.
const EnvAuditLog = "PKI_AUDIT_LOG"

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs w as the global audit writer. A nil writer disables
// auditing.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}

	globalWriter = w
	enabled = true
	return nil
}

// InitFile initializes the global audit logger with a file writer.
// An empty path disables auditing.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}

	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// InitFromEnv is InitFile with flagPath, or with $PKI_AUDIT_LOG when
// flagPath is empty.
func InitFromEnv(flagPath string) error {
	if flagPath == "" {
		flagPath = os.Getenv(EnvAuditLog)
	}
	return InitFile(flagPath)
}

// Close closes the global audit writer and disables auditing.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event to the global writer.
//
// IMPORTANT: If audit logging is enabled and this returns an error,
// the calling operation SHOULD fail.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and returns an error suitable for
// failing the parent operation if audit logging fails.
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// LogEncode logs an EMSA encoding. opErr is the outcome of the encoding.
func LogEncode(eventType EventType, hash string, modulusBits, saltLen int, opErr error) error {
	event := NewEvent(eventType, ResultSuccess).
		WithObject(Object{Type: "digest"}).
		WithError(opErr).
		WithContext(Context{
			Hash:        hash,
			ModulusBits: modulusBits,
			SaltLength:  saltLen,
		})
	return MustLog(event)
}

// LogConvert logs a DSA-family signature format conversion to format
// ("der" or "plain").
func LogConvert(format string, keyBits, size int, opErr error) error {
	event := NewEvent(EventSigConvert, ResultSuccess).
		WithObject(Object{Type: "signature"}).
		WithError(opErr).
		WithContext(Context{
			Format:      format,
			ModulusBits: keyBits,
			Size:        size,
		})
	return MustLog(event)
}

// LogSign logs a signing operation with the key at keyRef.
func LogSign(eventType EventType, keyRef, algorithm string, opErr error) error {
	event := NewEvent(eventType, ResultSuccess).
		WithObject(Object{Type: "message", KeyID: keyRef}).
		WithError(opErr).
		WithContext(Context{Algorithm: algorithm})
	return MustLog(event)
}

// LogVerify logs a verification. A verification failure is a failure event.
func LogVerify(eventType EventType, keyFamily, algorithm string, opErr error) error {
	event := NewEvent(eventType, ResultSuccess).
		WithObject(Object{Type: "signature"}).
		WithError(opErr).
		WithContext(Context{
			Algorithm: algorithm,
			KeyFamily: keyFamily,
		})
	return MustLog(event)
}

// LogKeyAccessed logs a private key load from path or an HSM.
func LogKeyAccessed(path, keyID string, opErr error) error {
	event := NewEvent(EventKeyAccessed, ResultSuccess).
		WithObject(Object{Type: "key", Path: path, KeyID: keyID}).
		WithError(opErr)
	return MustLog(event)
}
