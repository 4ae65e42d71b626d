package workflow

import (
	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/dom"
)

// Site describes where the workflow finds things on the application under
// test: page paths, form fields, submit controls and confirmation markers.
type Site struct {
	LoginPath          string
	AddUserPath        string
	PasswordChangePath string

	LoginForm     dom.Locator
	LoginUsername dom.Locator
	LoginPassword dom.Locator
	LoginSubmit   dom.Locator
	OTPField      dom.Locator
	OTPSubmit     dom.Locator
	ErrorNote     dom.Locator

	// AuthMarker is only rendered for an authenticated identity.
	AuthMarker dom.Locator
	// LoginEntry is any way back into the login form after logout.
	LoginEntry    dom.Locator
	LogoutControl dom.Locator
	// StaffMarker proves staff-level access once logged in.
	StaffMarker dom.Locator

	NewUsername    dom.Locator
	NewPassword1   dom.Locator
	NewPassword2   dom.Locator
	SaveButton     dom.Locator
	SuccessMessage dom.Locator

	OldPassword          dom.Locator
	NewPassword          dom.Locator
	ConfirmPassword      dom.Locator
	PasswordChangeSubmit dom.Locator
	PasswordChangedText  string

	// ManagedFlags are reconciled on every permission change: requested
	// flags end up checked, the others unchecked.
	ManagedFlags []Flag
}

// DjangoAdmin returns the locators of the stock django.contrib.admin site.
func DjangoAdmin() Site {
	return Site{
		LoginPath:          "/admin/login/",
		AddUserPath:        "/admin/auth/user/add/",
		PasswordChangePath: "/admin/password_change/",

		LoginForm:     dom.ID("login-form"),
		LoginUsername: dom.Name("username"),
		LoginPassword: dom.Name("password"),
		LoginSubmit:   dom.XPath("//input[@value='Log in']"),
		OTPField:      dom.Name("otp_token"),
		OTPSubmit:     dom.Query("#otp-form [type='submit']"),
		ErrorNote:     dom.Query(".errornote"),

		AuthMarker:    dom.ID("user-tools"),
		LoginEntry:    dom.XPath("//form[@id='login-form'] | //a[text()='Log in again']"),
		LogoutControl: dom.Query("form#logout-form button[type='submit']"),
		StaffMarker:   dom.XPath("//a[text()='View site']"),

		NewUsername:    dom.ID("id_username"),
		NewPassword1:   dom.ID("id_password1"),
		NewPassword2:   dom.ID("id_password2"),
		SaveButton:     dom.Name("_save"),
		SuccessMessage: dom.Query("ul.messagelist li.success"),

		OldPassword:          dom.Name("old_password"),
		NewPassword:          dom.Name("new_password1"),
		ConfirmPassword:      dom.Name("new_password2"),
		PasswordChangeSubmit: dom.XPath("//input[@type='submit' and @value='Change my password']"),
		PasswordChangedText:  "Your password was changed.",

		ManagedFlags: []Flag{FlagStaff, FlagSuperuser},
	}
}

// WithTarget overrides the page paths set in cfg.
func (s Site) WithTarget(cfg config.TargetConfig) Site {
	if cfg.LoginPath != "" {
		s.LoginPath = cfg.LoginPath
	}
	if cfg.AddUserPath != "" {
		s.AddUserPath = cfg.AddUserPath
	}
	if cfg.PasswordChangePath != "" {
		s.PasswordChangePath = cfg.PasswordChangePath
	}
	return s
}

// FlagLocator is the checkbox for f on the user change form.
func (s Site) FlagLocator(f Flag) dom.Locator { return dom.ID("id_" + string(f)) }
