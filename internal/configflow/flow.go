// Package configflow implements the add-device form: collect host and
// credentials, prove them with one request, then create the config entry.
package configflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"gocoax-monitor/internal/db"
	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const StepUser = "user"

type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Error keys shown next to the form.
const (
	ErrBase            = "base"
	ErrRequired        = "required"
	ErrCannotConnect   = "cannot_connect"
	ErrInvalidAuth     = "invalid_auth"
	ErrInvalidAuthMode = "invalid_auth_mode"
	ErrUnknown         = "unknown"

	AbortAlreadyConfigured = "already_configured"
)

type UserInput struct {
	Host     string
	Username string
	Password string
	Auth     string
}

// Field describes one form input.
type Field struct {
	Name     string
	Required bool
	Default  string
	Options  []string
}

var Schema = []Field{
	{Name: "host", Required: true},
	{Name: "username", Required: true},
	{Name: "password", Required: true},
	{Name: "auth", Default: string(gocoax.AuthBasic), Options: []string{string(gocoax.AuthBasic), string(gocoax.AuthDigest)}},
}

type Result struct {
	Type   ResultType
	StepID string
	Schema []Field
	Errors map[string]string
	Reason string // abort reason
	Title  string
	Entry  *models.Device
	Input  UserInput
}

// Validator proves host and credentials work.
type Validator func(ctx context.Context, host string, creds gocoax.Credentials) error

// DefaultValidator runs gocoax.ValidateConnection with the given options.
func DefaultValidator(opts ...gocoax.Option) Validator {
	return func(ctx context.Context, host string, creds gocoax.Credentials) error {
		return gocoax.ValidateConnection(ctx, host, creds, opts...)
	}
}

type Flow struct {
	gdb      *gorm.DB
	validate Validator
}

func New(gdb *gorm.DB, validate Validator) *Flow {
	return &Flow{gdb: gdb, validate: validate}
}

func form(in UserInput, errs map[string]string) Result {
	return Result{Type: ResultForm, StepID: StepUser, Schema: Schema, Errors: errs, Input: in}
}

// StepUser is the only step. A nil input shows the empty form.
func (f *Flow) StepUser(ctx context.Context, in *UserInput) (Result, error) {
	if in == nil {
		return form(UserInput{Auth: string(gocoax.AuthBasic)}, map[string]string{}), nil
	}

	input := UserInput{
		Host:     strings.TrimSpace(in.Host),
		Username: strings.TrimSpace(in.Username),
		Password: in.Password,
		Auth:     in.Auth,
	}

	errs := map[string]string{}
	for name, v := range map[string]string{"host": input.Host, "username": input.Username, "password": input.Password} {
		if v == "" {
			errs[name] = ErrRequired
		}
	}
	auth, err := gocoax.ParseAuthMode(input.Auth)
	if err != nil {
		errs["auth"] = ErrInvalidAuthMode
	}
	if len(errs) > 0 {
		return form(input, errs), nil
	}
	input.Auth = string(auth)

	creds := gocoax.Credentials{Username: input.Username, Password: input.Password, Auth: auth}
	if err := f.validate(ctx, input.Host, creds); err != nil {
		reason := classify(err)
		ev := log.Warn()
		if reason == ErrUnknown {
			ev = log.Error()
		}
		ev.Err(err).Str("host", input.Host).Str("reason", reason).Msg("connection validation failed")
		return form(input, map[string]string{ErrBase: reason}), nil
	}

	uniqueID := db.UniqueID(input.Host)
	existing, err := db.DeviceByUniqueID(f.gdb, uniqueID)
	if err != nil {
		return Result{}, fmt.Errorf("look up entry: %w", err)
	}
	if existing != nil {
		return Result{Type: ResultAbort, StepID: StepUser, Reason: AbortAlreadyConfigured}, nil
	}

	entry := &models.Device{
		EntryID:  uuid.NewString(),
		UniqueID: uniqueID,
		Title:    fmt.Sprintf("GoCoax (%s)", input.Host),
		Host:     input.Host,
		Username: input.Username,
		Password: input.Password,
		AuthMode: input.Auth,
	}
	if err := db.CreateDevice(f.gdb, entry); err != nil {
		return Result{}, fmt.Errorf("create entry: %w", err)
	}

	log.Info().Str("host", entry.Host).Str("entry_id", entry.EntryID).Msg("config entry created")
	return Result{Type: ResultCreateEntry, StepID: StepUser, Title: entry.Title, Entry: entry}, nil
}

// classify maps a validation error to the form error key.
func classify(err error) string {
	if gocoax.IsAuthError(err) {
		return ErrInvalidAuth
	}
	var se *gocoax.StatusError
	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	switch {
	case errors.As(err, &se),
		errors.As(err, &netErr),
		errors.As(err, &urlErr),
		errors.As(err, &opErr),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCannotConnect
	}
	return ErrUnknown
}
