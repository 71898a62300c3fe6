package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	for i, d := range cfg.Disks {
		if d.Host >= len(cfg.Hosts) || strings.TrimSpace(cfg.Hosts[d.Host]) == "" {
			return fmt.Errorf("disks[%d]: host slot %d is not configured", i, d.Host+1)
		}
	}

	if _, err := cfg.ControlPlane.ListenAddr(); err != nil {
		return fmt.Errorf("controlplane.interface_url: %w", err)
	}
	return nil
}
