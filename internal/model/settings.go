package model

import (
	"fmt"
	"net/mail"
	"strings"
)

// NotifySettings are the operator-editable overrides for outgoing
// confirmations. Empty fields fall back to the config file.
type NotifySettings struct {
	Enabled     bool   `json:"enabled"`
	FromName    string `json:"fromName,omitempty"`
	FromAddress string `json:"fromAddress,omitempty"`
	BccAddress  string `json:"bccAddress,omitempty"`
}

// NotifySettingsChange is one saved revision of NotifySettings.
type NotifySettingsChange struct {
	Settings  NotifySettings `json:"settings"`
	ChangedAt int64          `json:"changedAtMs"`
}

func (s NotifySettings) Validate() error {
	if v := strings.TrimSpace(s.FromAddress); v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			return fmt.Errorf("invalid fromAddress: %w", err)
		}
	}
	if v := strings.TrimSpace(s.BccAddress); v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			return fmt.Errorf("invalid bccAddress: %w", err)
		}
	}
	return nil
}
