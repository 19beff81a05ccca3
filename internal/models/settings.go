package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ReminderSettings is the JSON value stored under AccountConfigSubmitterReminders
type ReminderSettings struct {
	FirstDuration  string `json:"first_duration"`
	SecondDuration string `json:"second_duration"`
	ThirdDuration  string `json:"third_duration"`
	SubjectPrefix  string `json:"subject_prefix"`
}

// DurationTokens returns the three slots in escalation order
func (r ReminderSettings) DurationTokens() [3]string {
	return [3]string{r.FirstDuration, r.SecondDuration, r.ThirdDuration}
}

// SMTPSettings is the decrypted JSON value stored under EncryptedConfigEmailSMTP
type SMTPSettings struct {
	Host           string   `json:"host"`
	Port           FlexPort `json:"port"`
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	Domain         string   `json:"domain"`
	Security       string   `json:"security"`
	Authentication string   `json:"authentication"`
	FromEmail      string   `json:"from_email"`
}

// IsEmpty reports whether the settings can not describe a transport
func (s *SMTPSettings) IsEmpty() bool {
	return s == nil || strings.TrimSpace(s.Host) == ""
}

// FlexPort accepts a port written either as a JSON number or a string
type FlexPort int

func (p *FlexPort) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*p = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid port %s", string(b))
	}
	*p = FlexPort(n)
	return nil
}
