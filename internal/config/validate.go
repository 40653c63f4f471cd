package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports configuration errors that must stop the daemon before its
// loop starts.
func (c *Config) Validate() error {
	if err := c.validateTelephony(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		return errors.New("paths.database_path must be set")
	}
	if strings.TrimSpace(c.Paths.MarkerFile) == "" {
		return errors.New("paths.marker_file must be set")
	}
	return nil
}

func (c *Config) validateTelephony() error {
	var missing []string
	if c.Telephony.APIKey == "" {
		missing = append(missing, "EXOTEL_API_KEY")
	}
	if c.Telephony.APIToken == "" {
		missing = append(missing, "EXOTEL_API_TOKEN")
	}
	if c.Telephony.AccountSID == "" {
		missing = append(missing, "EXOTEL_SID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("telephony credentials missing: %s", strings.Join(missing, ", "))
	}
	if c.Telephony.TimeoutSeconds <= 0 {
		return errors.New("telephony.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("openai api key missing: set OPENAI_API_KEY")
	}
	if c.OpenAI.DiarizeTimeoutSeconds <= 0 || c.OpenAI.PlainTimeoutSeconds <= 0 {
		return errors.New("openai transcription timeouts must be positive")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return errors.New("openai.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.IntervalSeconds < MinIntervalSeconds {
		return fmt.Errorf("scheduler.interval_seconds must be at least %d", MinIntervalSeconds)
	}
	if c.Scheduler.IntervalSeconds > MaxIntervalSeconds {
		return fmt.Errorf("scheduler.interval_seconds must be at most %d", MaxIntervalSeconds)
	}
	if c.Scheduler.StopAttempts <= 0 {
		return errors.New("scheduler.stop_attempts must be positive")
	}
	return nil
}
