// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/toeirei/cachesweep/internal/model"
	"github.com/toeirei/cachesweep/internal/schedule"
)

// ErrValidation is wrapped by every input rejection; the wrapping error
// carries the field detail.
var ErrValidation = errors.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cronexpr", func(fl validator.FieldLevel) bool {
		expr := strings.TrimSpace(fl.Field().String())
		return expr == "" || schedule.ValidateCron(expr) == nil
	})
	// A leading dash would be read by find as an option.
	_ = v.RegisterValidation("remotepath", func(fl validator.FieldLevel) bool {
		return !strings.HasPrefix(strings.TrimSpace(fl.Field().String()), "-")
	})
	return v
}

// HostInput is the writable part of a host profile as accepted by the API,
// the CLI and the YAML import.
type HostInput struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Hostname    string   `json:"hostname" yaml:"hostname" validate:"required"`
	Port        int      `json:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username    string   `json:"username" yaml:"username" validate:"required"`
	SSHKey      string   `json:"ssh_key" yaml:"ssh_key"`
	Group       string   `json:"grp" yaml:"grp"`
	RemotePaths []string `json:"remote_paths" yaml:"remote_paths" validate:"required,min=1,dive,remotepath"`
	Schedule    string   `json:"schedule" yaml:"schedule" validate:"cronexpr"`
	KeepLast    int      `json:"keep_last" yaml:"keep_last" validate:"min=0"`
	Transport   string   `json:"transport" yaml:"transport" validate:"omitempty,oneof=ssh sftp"`
	UseSudo     *bool    `json:"use_sudo" yaml:"use_sudo"`
}

// InputFromHost returns the input that would recreate h.
func InputFromHost(h model.Host) HostInput {
	sudo := h.UseSudo
	return HostInput{
		Name:        h.Name,
		Hostname:    h.Hostname,
		Port:        h.Port,
		Username:    h.Username,
		SSHKey:      h.SSHKey,
		Group:       h.Group,
		RemotePaths: append([]string(nil), h.RemotePaths...),
		Schedule:    h.Schedule,
		KeepLast:    h.KeepLast,
		Transport:   string(h.Transport),
		UseSudo:     &sudo,
	}
}

func (in *HostInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Hostname = strings.TrimSpace(in.Hostname)
	in.Username = strings.TrimSpace(in.Username)
	in.SSHKey = strings.TrimSpace(in.SSHKey)
	in.Group = strings.TrimSpace(in.Group)
	in.Schedule = strings.Join(strings.Fields(in.Schedule), " ")
	in.Transport = strings.ToLower(strings.TrimSpace(in.Transport))
}

// Validate normalizes in and checks it. The returned error wraps
// ErrValidation.
func (in *HostInput) Validate() error {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	if len((model.Host{RemotePaths: in.RemotePaths}).ActivePaths()) == 0 {
		return fmt.Errorf("%w: remote_paths needs at least one non-blank path", ErrValidation)
	}
	return nil
}

// toHost validates in and builds a host. Unset optional fields fall back to
// prev when given, otherwise to the defaults.
func (in HostInput) toHost(prev *model.Host) (model.Host, error) {
	if in.RemotePaths == nil && prev != nil {
		in.RemotePaths = prev.RemotePaths
	}
	if err := in.Validate(); err != nil {
		return model.Host{}, err
	}
	h := model.Host{
		Name:        in.Name,
		Hostname:    in.Hostname,
		Port:        in.Port,
		Username:    in.Username,
		SSHKey:      in.SSHKey,
		Group:       in.Group,
		RemotePaths: in.RemotePaths,
		Schedule:    in.Schedule,
		KeepLast:    in.KeepLast,
		Transport:   model.Transport(in.Transport),
		UseSudo:     true,
	}
	if h.Port == 0 {
		h.Port = model.DefaultPort
	}
	if h.SSHKey == "" {
		h.SSHKey = model.DefaultKeyPath
	}
	if h.Transport == "" {
		h.Transport = model.TransportSSH
	}
	switch {
	case in.UseSudo != nil:
		h.UseSudo = *in.UseSudo
	case prev != nil:
		h.UseSudo = prev.UseSudo
	}
	return h, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" "+describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "needs at least " + fe.Param() + " entry"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "cronexpr":
		return "is not a valid 5-field cron expression"
	case "remotepath":
		return "must not start with '-'"
	}
	return "is invalid (" + fe.Tag() + ")"
}
