package manager

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
	"git.home.luguber.info/inful/forpostctl/internal/readiness"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

// Power-save keys. Applying them to the hardware is left to the appliance scripts.
const (
	KeyPowerWiFi       = "POWER_SAVE_WIFI"
	KeyPowerBluetooth  = "POWER_SAVE_BLUETOOTH"
	KeyPowerHDMI       = "POWER_SAVE_HDMI"
	KeyPowerEthSpeed   = "POWER_SAVE_ETH_SPEED"
	KeyPowerEthAutoneg = "POWER_SAVE_ETH_AUTONEG"
)

var (
	ethSpeeds   = []string{"auto", "10", "100", "1000"}
	ethAutonegs = []string{"on", "off"}
)

// PowerSettings is the persisted power-save policy.
type PowerSettings struct {
	WiFi       bool   `json:"wifi"`
	Bluetooth  bool   `json:"bluetooth"`
	HDMI       bool   `json:"hdmi"`
	EthSpeed   string `json:"eth_speed"`
	EthAutoneg string `json:"eth_autoneg"`
}

// PowerSettingsFrom reads the policy; missing keys take their defaults.
func PowerSettingsFrom(values readiness.Values) PowerSettings {
	get := func(key, fallback string) string {
		if v, ok := values.Get(key); ok {
			return v
		}
		return fallback
	}
	return PowerSettings{
		WiFi:       get(KeyPowerWiFi, "false") == "true",
		Bluetooth:  get(KeyPowerBluetooth, "false") == "true",
		HDMI:       get(KeyPowerHDMI, "false") == "true",
		EthSpeed:   get(KeyPowerEthSpeed, "auto"),
		EthAutoneg: get(KeyPowerEthAutoneg, "on"),
	}
}

// Validate checks the ethernet settings against what ethtool accepts.
func (p PowerSettings) Validate() error {
	if !slices.Contains(ethSpeeds, p.EthSpeed) {
		return errors.ValidationError(fmt.Sprintf("unsupported ethernet speed %q", p.EthSpeed)).
			WithContext("key", KeyPowerEthSpeed).
			Build()
	}
	if !slices.Contains(ethAutonegs, p.EthAutoneg) {
		return errors.ValidationError(fmt.Sprintf("unsupported auto-negotiation mode %q", p.EthAutoneg)).
			WithContext("key", KeyPowerEthAutoneg).
			Build()
	}
	return nil
}

// Updates renders the policy as config updates.
func (p PowerSettings) Updates() kvconfig.Updates {
	return kvconfig.Updates{
		{Key: KeyPowerWiFi, Value: strconv.FormatBool(p.WiFi)},
		{Key: KeyPowerBluetooth, Value: strconv.FormatBool(p.Bluetooth)},
		{Key: KeyPowerHDMI, Value: strconv.FormatBool(p.HDMI)},
		{Key: KeyPowerEthSpeed, Value: p.EthSpeed},
		{Key: KeyPowerEthAutoneg, Value: p.EthAutoneg},
	}
}

// PowerSettings returns the persisted power-save policy.
func (m *Manager) PowerSettings() (PowerSettings, error) {
	set, err := m.loader.Load()
	if err != nil {
		return PowerSettings{}, err
	}
	return PowerSettingsFrom(set), nil
}

// SetPowerSettings persists the power-save policy.
func (m *Manager) SetPowerSettings(ctx context.Context, p PowerSettings) (ChangeReport, error) {
	if err := p.Validate(); err != nil {
		opID, _ := m.mutate(ctx, "config.power", func(context.Context, string) error { return err })
		return ChangeReport{OperationID: opID}, err
	}
	return m.saveAs(ctx, "config.power", eventstore.SourcePower, p.Updates())
}

// AutoRestart returns the persisted auto-restart policy.
func (m *Manager) AutoRestart() (stream.AutoRestart, error) {
	set, err := m.loader.Load()
	if err != nil {
		return stream.AutoRestart{}, err
	}
	return stream.AutoRestartFrom(set), nil
}

// SetAutoRestart persists the auto-restart policy and brings the timer unit in
// line with it. A timer failure is returned after the policy was saved.
func (m *Manager) SetAutoRestart(ctx context.Context, enabled bool, intervalHours int) (ChangeReport, error) {
	if intervalHours < 1 {
		err := errors.ValidationError(fmt.Sprintf("auto-restart interval must be at least 1 hour, got %d", intervalHours)).
			WithContext("key", stream.KeyAutoRestartInterval).
			Build()
		opID, _ := m.mutate(ctx, "config.autorestart", func(context.Context, string) error { return err })
		return ChangeReport{OperationID: opID}, err
	}

	rep, err := m.saveAs(ctx, "config.autorestart", eventstore.SourceAutoRestart, kvconfig.Updates{
		{Key: stream.KeyAutoRestartEnabled, Value: strconv.FormatBool(enabled)},
		{Key: stream.KeyAutoRestartInterval, Value: strconv.Itoa(intervalHours)},
	})
	if err != nil || m.stream == nil {
		return rep, err
	}
	return rep, m.stream.ApplyAutoRestart(ctx, enabled)
}
