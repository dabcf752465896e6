package configflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gocoax-monitor/internal/db"
	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/gocoax/gocoaxtest"

	"gorm.io/gorm"
)

func newFlow(t *testing.T) (*Flow, *gorm.DB, string) {
	t.Helper()
	srv := gocoaxtest.NewDevice().Start(t)
	gdb, err := db.Open(filepath.Join(t.TempDir(), "flow.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	return New(gdb, DefaultValidator()), gdb, gocoaxtest.Host(srv)
}

func countEntries(t *testing.T, gdb *gorm.DB) int {
	t.Helper()
	all, err := db.ListDevices(gdb)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	return len(all)
}

func TestStepUser_ShowsForm(t *testing.T) {
	f, _, _ := newFlow(t)

	res, err := f.StepUser(context.Background(), nil)
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Type != ResultForm || res.StepID != StepUser || len(res.Errors) != 0 {
		t.Fatalf("res=%+v", res)
	}
	if len(res.Schema) != 4 || !res.Schema[0].Required {
		t.Fatalf("schema=%+v", res.Schema)
	}
}

func TestStepUser_CreatesEntry(t *testing.T) {
	f, gdb, host := newFlow(t)

	res, err := f.StepUser(context.Background(), &UserInput{
		Host:     " " + host + " ",
		Username: gocoaxtest.Username,
		Password: gocoaxtest.Password,
	})
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Type != ResultCreateEntry {
		t.Fatalf("res=%+v", res)
	}
	if res.Title != "GoCoax ("+host+")" {
		t.Fatalf("title=%q", res.Title)
	}
	e := res.Entry
	if e.Host != host || e.UniqueID != strings.ToLower(host) || e.AuthMode != "basic" || e.EntryID == "" {
		t.Fatalf("entry=%+v", e)
	}
	if countEntries(t, gdb) != 1 {
		t.Fatalf("entry not stored")
	}
}

func TestStepUser_InvalidCredentials(t *testing.T) {
	f, gdb, host := newFlow(t)

	res, err := f.StepUser(context.Background(), &UserInput{Host: host, Username: "admin", Password: "wrong"})
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Type != ResultForm || res.Errors[ErrBase] != ErrInvalidAuth {
		t.Fatalf("res=%+v", res)
	}
	if countEntries(t, gdb) != 0 {
		t.Fatalf("entry created with bad credentials")
	}
}

func TestStepUser_CannotConnect(t *testing.T) {
	f, gdb, _ := newFlow(t)

	res, err := f.StepUser(context.Background(), &UserInput{Host: "127.0.0.1:1", Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Errors[ErrBase] != ErrCannotConnect {
		t.Fatalf("errors=%v", res.Errors)
	}
	if countEntries(t, gdb) != 0 {
		t.Fatalf("entry created for unreachable host")
	}
}

func TestStepUser_UnknownError(t *testing.T) {
	_, gdb, host := newFlow(t)
	f := New(gdb, func(context.Context, string, gocoax.Credentials) error { return errors.New("boom") })

	res, err := f.StepUser(context.Background(), &UserInput{Host: host, Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Errors[ErrBase] != ErrUnknown {
		t.Fatalf("errors=%v", res.Errors)
	}
}

func TestStepUser_RequiredFields(t *testing.T) {
	called := false
	_, gdb, _ := newFlow(t)
	f := New(gdb, func(context.Context, string, gocoax.Credentials) error { called = true; return nil })

	res, err := f.StepUser(context.Background(), &UserInput{Host: "  ", Password: "x", Auth: "ntlm"})
	if err != nil {
		t.Fatalf("StepUser: %v", err)
	}
	if res.Errors["host"] != ErrRequired || res.Errors["username"] != ErrRequired || res.Errors["auth"] != ErrInvalidAuthMode {
		t.Fatalf("errors=%v", res.Errors)
	}
	if _, ok := res.Errors["password"]; ok {
		t.Fatalf("password was given")
	}
	if called {
		t.Fatalf("validator ran on an incomplete form")
	}
}

func TestStepUser_AbortsDuplicateHost(t *testing.T) {
	f, gdb, host := newFlow(t)
	ctx := context.Background()
	in := &UserInput{Host: host, Username: gocoaxtest.Username, Password: gocoaxtest.Password}

	if res, err := f.StepUser(ctx, in); err != nil || res.Type != ResultCreateEntry {
		t.Fatalf("first: %+v, %v", res, err)
	}

	again := *in
	again.Host = strings.ToUpper(host)
	res, err := f.StepUser(ctx, &again)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Type != ResultAbort || res.Reason != AbortAlreadyConfigured {
		t.Fatalf("res=%+v", res)
	}
	if countEntries(t, gdb) != 1 {
		t.Fatalf("duplicate entry stored")
	}
}
