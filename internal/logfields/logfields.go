package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyOperationID = "operation_id"
	KeyOperation   = "operation"
	KeyUnit        = "unit"
	KeyPath        = "path"
	KeyKey         = "key"
	KeySlot        = "slot"
	KeyBackup      = "backup"
	KeyChecksum    = "checksum"
	KeySize        = "size_bytes"
	KeyTxnState    = "txn_state"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func OperationID(id string) slog.Attr  { return slog.String(KeyOperationID, id) }
func Operation(op string) slog.Attr    { return slog.String(KeyOperation, op) }
func Unit(name string) slog.Attr       { return slog.String(KeyUnit, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func Slot(n int) slog.Attr             { return slog.Int(KeySlot, n) }
func Backup(name string) slog.Attr     { return slog.String(KeyBackup, name) }
func Checksum(sum string) slog.Attr    { return slog.String(KeyChecksum, sum) }
func Size(n int64) slog.Attr           { return slog.Int64(KeySize, n) }
func TxnState(s string) slog.Attr      { return slog.String(KeyTxnState, s) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
