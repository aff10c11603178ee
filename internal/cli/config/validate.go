package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
	"github.com/leapstack-labs/creditscope/internal/export"
)

// Validate checks option ranges and names. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error
	if c.EndYear < c.StartYear {
		errs = append(errs, fmt.Errorf("end_year %d is before start_year %d", c.EndYear, c.StartYear))
	}
	if len(c.Tables) == 0 {
		errs = append(errs, fmt.Errorf("tables must not be empty"))
	}
	for _, t := range c.Tables {
		if t < 1 || t > 10 {
			errs = append(errs, fmt.Errorf("table %d is out of range 1-10", t))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RateTolerance < 0 {
		errs = append(errs, fmt.Errorf("rate_tolerance must not be negative, got %v", c.RateTolerance))
	}
	for _, name := range c.Exports {
		if !export.IsRegistered(name) {
			errs = append(errs, &export.UnknownSinkError{Name: name, Available: export.List()})
		}
	}
	if !output.Mode(c.OutputFormat).Valid() {
		errs = append(errs, fmt.Errorf("unknown output format %q (want one of %v)", c.OutputFormat, output.Modes()))
	}
	return errors.Join(errs...)
}

// ValidateRawDir checks that the raw workbook directory exists.
func (c *Config) ValidateRawDir() error {
	if _, err := os.Stat(c.RawDir); os.IsNotExist(err) {
		return fmt.Errorf("raw directory does not exist: %s\nHint: Download the FCS workbooks or use --raw-dir to specify a different path", c.RawDir)
	}
	return nil
}
