package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"OperationID", KeyOperationID, "op-1", OperationID("op-1")},
		{"Operation", KeyOperation, "artifact.upload", Operation("artifact.upload")},
		{"Unit", KeyUnit, "forpost-stream", Unit("forpost-stream")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Key", KeyKey, "RTMP_URL", Key("RTMP_URL")},
		{"Backup", KeyBackup, "ffmpeg.1", Backup("ffmpeg.1")},
		{"Checksum", KeyChecksum, "abc", Checksum("abc")},
		{"TxnState", KeyTxnState, "stopping", TxnState("stopping")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric & float helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Slot(2); v.Key != KeySlot { t.Fatalf("Slot key mismatch: %s", v.Key) }
	if v := Size(42); v.Key != KeySize { t.Fatalf("Size key mismatch: %s", v.Key) }
	if v := DurationMS(12.5); v.Key != KeyDurationMS { t.Fatalf("DurationMS key mismatch: %s", v.Key) }
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError { t.Fatalf("Error key mismatch: %s", attr.Key) }
	if attr.Value.String() != "" { t.Fatalf("Expected empty error string, got %s", attr.Value.String()) }
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" { t.Fatalf("Expected 'err-test', got %s", attr.Value.String()) }
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
