package domain

import (
	"encoding/json"
	"strings"
)

// Access types understood by the conferencing service.
const (
	AccessOpen       = "open"
	AccessTrusted    = "trusted"
	AccessRestricted = "restricted"
)

// Configuration holds the per-meeting room preferences pushed to the
// external conferencing service. It always carries every key; absent keys
// in stored or submitted JSON take their default value.
type Configuration struct {
	AccessType       string `json:"access_type"`
	MuteOnEntry      bool   `json:"mute_on_entry"`
	VideoOffOnEntry  bool   `json:"video_off_on_entry"`
	AllowChat        bool   `json:"allow_chat"`
	AllowScreenShare bool   `json:"allow_screen_share"`
	AllowReactions   bool   `json:"allow_reactions"`
	AutoRecord       bool   `json:"auto_record"`
	AutoTranscribe   bool   `json:"auto_transcribe"`
}

// DefaultConfiguration returns the preferences applied to new meetings.
func DefaultConfiguration() Configuration {
	return Configuration{
		AccessType:       AccessTrusted,
		MuteOnEntry:      false,
		VideoOffOnEntry:  false,
		AllowChat:        true,
		AllowScreenShare: true,
		AllowReactions:   true,
		AutoRecord:       false,
		AutoTranscribe:   false,
	}
}

// Normalize fixes up values outside their domain.
func (c Configuration) Normalize() Configuration {
	switch strings.ToLower(strings.TrimSpace(c.AccessType)) {
	case AccessOpen:
		c.AccessType = AccessOpen
	case AccessRestricted:
		c.AccessType = AccessRestricted
	default:
		c.AccessType = AccessTrusted
	}
	return c
}

// UnmarshalJSON overlays the provided keys on DefaultConfiguration so a
// partial document never yields zero values for missing keys.
func (c *Configuration) UnmarshalJSON(b []byte) error {
	type plain Configuration
	cfg := plain(DefaultConfiguration())
	if s := strings.TrimSpace(string(b)); s != "" && s != "null" {
		if err := json.Unmarshal(b, &cfg); err != nil {
			return err
		}
	}
	*c = Configuration(cfg).Normalize()
	return nil
}
