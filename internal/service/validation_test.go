package service

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestRegisterValidators_Tags(t *testing.T) {
	v := validator.New()
	if err := RegisterValidators(v); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		value string
		tag   string
		ok    bool
	}{
		{"08123456789", "phone", true},
		{"8123456789", "phone", false},
		{"081234567890", "phone", false},
		{"0812345678a", "phone", false},
		{"Passw0rd!", "strongpassword", true},
		{"password1!", "strongpassword", false},
		{"Passw0rd#", "strongpassword", false},
		{"Pässw0rd!", "strongpassword", false},
	}
	for _, tc := range cases {
		t.Run(tc.tag+"/"+tc.value, func(t *testing.T) {
			err := v.Var(tc.value, tc.tag)
			if (err == nil) != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, err)
			}
		})
	}
}

func TestCheckPassword_Messages(t *testing.T) {
	cases := map[string]string{
		"":                      "Password field can't be left empty",
		"Pa1!":                  "Password must be at least 8 characters long",
		"Passw0rd!Passw0rd!Pa1": "Password must be at most 20 characters long",
		"password1!":            "Password must contain Lowercase, Uppercase, Numbers, and special characters",
	}
	for password, want := range cases {
		var verr *ValidationError
		if err := checkPassword(password); !errors.As(err, &verr) {
			t.Fatalf("%q: expected ValidationError, got %v", password, err)
		}
		if verr.Field != "password" || verr.Message != want {
			t.Fatalf("%q: unexpected error %+v", password, verr)
		}
	}
	if err := checkPassword("Passw0rd!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestFieldMessage(t *testing.T) {
	if msg, ok := FieldMessage("Fullname", "min"); !ok || msg != "Minimum of 3 characters for the full name field" {
		t.Fatalf("unexpected Fullname message %q", msg)
	}
	if msg, ok := FieldMessage("phoneNumber", "phone"); !ok || msg == "" {
		t.Fatalf("expected phone message")
	}
	if _, ok := FieldMessage("question", "required"); ok {
		t.Fatalf("expected unknown field to fall through")
	}
}
