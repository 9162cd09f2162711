package creds

import (
	"encoding/json"
	"fmt"
	"os"
)

// RobotCredentials holds the connection details for a Viam robot.
type RobotCredentials struct {
	Address  string `json:"address"`
	EntityID string `json:"entity_id"`
	APIKey   string `json:"api_key"`
}

// Load reads robot credentials from a JSON file, or from the environment
// when path is empty (SPYGLASS_ADDRESS, SPYGLASS_ENTITY_ID, SPYGLASS_API_KEY).
func Load(path string) (*RobotCredentials, error) {
	if path == "" {
		return FromEnv()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	var c RobotCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", path, err)
	}
	return &c, nil
}

// FromEnv builds credentials from environment variables.
func FromEnv() (*RobotCredentials, error) {
	c := &RobotCredentials{
		Address:  os.Getenv("SPYGLASS_ADDRESS"),
		EntityID: os.Getenv("SPYGLASS_ENTITY_ID"),
		APIKey:   os.Getenv("SPYGLASS_API_KEY"),
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("environment credentials: %w", err)
	}
	return c, nil
}

// Validate checks that every required field is present.
func (c *RobotCredentials) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("missing address")
	}
	if c.EntityID == "" {
		return fmt.Errorf("missing entity_id")
	}
	if c.APIKey == "" {
		return fmt.Errorf("missing api_key")
	}
	return nil
}
