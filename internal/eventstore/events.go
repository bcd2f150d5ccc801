package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// Event type names.
const (
	TypeConfigChanged         = "ConfigChanged"
	TypeConfigBackupDeleted   = "ConfigBackupDeleted"
	TypeArtifactUploaded      = "ArtifactUploaded"
	TypeArtifactRestored      = "ArtifactRestored"
	TypeArtifactDeleted       = "ArtifactDeleted"
	TypeArtifactReplaceFailed = "ArtifactReplaceFailed"
	TypeStreamControl         = "StreamControl"
	TypeOverlayUpdated        = "OverlayUpdated"
)

// Config change sources.
const (
	SourceSave        = "save"
	SourceRaw         = "raw"
	SourceRestore     = "restore"
	SourceInstall     = "install"
	SourceAutoRestart = "auto_restart"
	SourcePower       = "power"
	SourceExternal    = "external"
)

// Stream control actions.
const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionRestart     = "restart"
	ActionAutostart   = "autostart"
	ActionNoAutostart = "no_autostart"
)

func newBase(operationID, eventType string, payload any, context map[string]any) (BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		b := errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("operation_id", operationID)
		for k, v := range context {
			b = b.WithContext(k, v)
		}
		return BaseEvent{}, b.Build()
	}
	return BaseEvent{
		EventOperationID: operationID,
		EventType:        eventType,
		EventTimestamp:   time.Now(),
		EventPayload:     data,
	}, nil
}

// KeyChange is the before and after of one config key.
type KeyChange struct {
	Key     string `json:"key"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Existed bool   `json:"existed"`
}

// ConfigChangedData is the payload of a ConfigChanged event.
type ConfigChangedData struct {
	Source          string      `json:"source"`
	Changes         []KeyChange `json:"changes"`
	CriticalKeys    []string    `json:"critical_keys,omitempty"`
	RestartRequired bool        `json:"restart_required"`
	Slot            int         `json:"slot,omitempty"`
}

// ConfigChanged is emitted after the persisted config was written.
type ConfigChanged struct {
	BaseEvent
	Data ConfigChangedData
}

// NewConfigChanged creates a ConfigChanged event.
func NewConfigChanged(operationID string, data ConfigChangedData) (*ConfigChanged, error) {
	base, err := newBase(operationID, TypeConfigChanged, data, map[string]any{"source": data.Source})
	if err != nil {
		return nil, err
	}
	return &ConfigChanged{BaseEvent: base, Data: data}, nil
}

// ConfigBackupDeleted is emitted when a backup slot is removed.
type ConfigBackupDeleted struct {
	BaseEvent
	Slot int `json:"slot"`
}

// NewConfigBackupDeleted creates a ConfigBackupDeleted event.
func NewConfigBackupDeleted(operationID string, slot int) (*ConfigBackupDeleted, error) {
	base, err := newBase(operationID, TypeConfigBackupDeleted, map[string]any{"slot": slot}, nil)
	if err != nil {
		return nil, err
	}
	return &ConfigBackupDeleted{BaseEvent: base, Slot: slot}, nil
}

// ArtifactUploaded is emitted after a new binary went live.
type ArtifactUploaded struct {
	BaseEvent
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	Backup   string `json:"backup,omitempty"`
}

// NewArtifactUploaded creates an ArtifactUploaded event.
func NewArtifactUploaded(operationID, checksum string, size int64, backup string) (*ArtifactUploaded, error) {
	base, err := newBase(operationID, TypeArtifactUploaded, map[string]any{
		"checksum": checksum,
		"size":     size,
		"backup":   backup,
	}, map[string]any{"checksum": checksum})
	if err != nil {
		return nil, err
	}
	return &ArtifactUploaded{BaseEvent: base, Checksum: checksum, Size: size, Backup: backup}, nil
}

// ArtifactRestored is emitted after a backup was made the live binary.
type ArtifactRestored struct {
	BaseEvent
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// NewArtifactRestored creates an ArtifactRestored event.
func NewArtifactRestored(operationID, name, checksum string) (*ArtifactRestored, error) {
	base, err := newBase(operationID, TypeArtifactRestored, map[string]any{
		"name":     name,
		"checksum": checksum,
	}, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	return &ArtifactRestored{BaseEvent: base, Name: name, Checksum: checksum}, nil
}

// ArtifactDeleted is emitted when a binary backup is removed.
type ArtifactDeleted struct {
	BaseEvent
	Name string `json:"name"`
}

// NewArtifactDeleted creates an ArtifactDeleted event.
func NewArtifactDeleted(operationID, name string) (*ArtifactDeleted, error) {
	base, err := newBase(operationID, TypeArtifactDeleted, map[string]any{"name": name}, nil)
	if err != nil {
		return nil, err
	}
	return &ArtifactDeleted{BaseEvent: base, Name: name}, nil
}

// ArtifactReplaceFailed is emitted when an upload or restore did not complete.
type ArtifactReplaceFailed struct {
	BaseEvent
	Operation string `json:"operation"`
	State     string `json:"state"`
	Error     string `json:"error"`
}

// NewArtifactReplaceFailed creates an ArtifactReplaceFailed event.
func NewArtifactReplaceFailed(operationID, operation, state string, cause error) (*ArtifactReplaceFailed, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	base, err := newBase(operationID, TypeArtifactReplaceFailed, map[string]any{
		"operation": operation,
		"state":     state,
		"error":     msg,
	}, map[string]any{"operation": operation})
	if err != nil {
		return nil, err
	}
	return &ArtifactReplaceFailed{BaseEvent: base, Operation: operation, State: state, Error: msg}, nil
}

// StreamControl is emitted for start, stop, restart and autostart changes.
type StreamControl struct {
	BaseEvent
	Action string `json:"action"`
	Unit   string `json:"unit"`
}

// NewStreamControl creates a StreamControl event.
func NewStreamControl(operationID, action, unit string) (*StreamControl, error) {
	base, err := newBase(operationID, TypeStreamControl, map[string]any{
		"action": action,
		"unit":   unit,
	}, map[string]any{"action": action})
	if err != nil {
		return nil, err
	}
	return &StreamControl{BaseEvent: base, Action: action, Unit: unit}, nil
}

// OverlayUpdated is emitted when the live overlay text was rewritten.
type OverlayUpdated struct {
	BaseEvent
	Text string `json:"text"`
}

// NewOverlayUpdated creates an OverlayUpdated event.
func NewOverlayUpdated(operationID, text string) (*OverlayUpdated, error) {
	base, err := newBase(operationID, TypeOverlayUpdated, map[string]any{
		"text": text,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &OverlayUpdated{BaseEvent: base, Text: text}, nil
}
