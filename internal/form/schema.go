// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package form validates signup and login form submissions against JSON
// Schemas reflected from the form structs. The schema is the single
// source of truth for field rules; handlers only see typed, validated
// forms.
package form

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SignupForm is a validated signup submission. Email is optional, but
// when present it must carry at least two domain segments and end in an
// allowed TLD.
type SignupForm struct {
	Username string `json:"username" jsonschema:"pattern=^[a-zA-Z0-9]+$,maxLength=20"`
	Email    string `json:"email,omitempty" jsonschema:"pattern=^[^@\\s]+@([A-Za-z0-9-]+\\.)+(com|net)$"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=20"`
}

// LoginForm is a validated login submission.
type LoginForm struct {
	Email    string `json:"email,omitempty" jsonschema:"pattern=^[^@\\s]+@([A-Za-z0-9-]+\\.)+(com|net)$"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=20"`
}

var (
	signupOnce   sync.Once
	signupSchema *jschema.Schema
	signupErr    error

	loginOnce   sync.Once
	loginSchema *jschema.Schema
	loginErr    error
)

// compileFor reflects a JSON Schema from the form struct and compiles it.
// Unknown fields are rejected: the reflector emits
// additionalProperties=false.
func compileFor(v any, name string) (*jschema.Schema, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.Code("FORM_SCHEMA_FAILED").
			With("operation", "marshal schema").
			With("schema", name).
			Wrap(err)
	}

	var schemaData any
	if err := json.Unmarshal(data, &schemaData); err != nil {
		return nil, oops.Code("FORM_SCHEMA_FAILED").
			With("operation", "parse schema").
			With("schema", name).
			Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(name, schemaData); err != nil {
		return nil, oops.Code("FORM_SCHEMA_FAILED").
			With("operation", "add schema resource").
			With("schema", name).
			Wrap(err)
	}

	sch, err := c.Compile(name)
	if err != nil {
		return nil, oops.Code("FORM_SCHEMA_FAILED").
			With("operation", "compile schema").
			With("schema", name).
			Wrap(err)
	}
	return sch, nil
}

// candidate converts posted fields into a document for validation. Keys
// absent from the POST stay absent from the document, so optional fields
// only validate when actually submitted.
func candidate(fields map[string]string) map[string]any {
	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	return doc
}

// ValidateSignup validates a signup submission. Posted empty strings
// fail validation the same way malformed values do.
func ValidateSignup(fields map[string]string) (*SignupForm, error) {
	signupOnce.Do(func() {
		signupSchema, signupErr = compileFor(&SignupForm{}, "signup.json")
	})
	if signupErr != nil {
		return nil, signupErr
	}

	if err := signupSchema.Validate(candidate(fields)); err != nil {
		return nil, oops.Code("FORM_INVALID").
			With("form", "signup").
			Wrap(err)
	}

	return &SignupForm{
		Username: fields["username"],
		Email:    fields["email"],
		Password: fields["password"],
	}, nil
}

// ValidateLogin validates a login submission.
func ValidateLogin(fields map[string]string) (*LoginForm, error) {
	loginOnce.Do(func() {
		loginSchema, loginErr = compileFor(&LoginForm{}, "login.json")
	})
	if loginErr != nil {
		return nil, loginErr
	}

	if err := loginSchema.Validate(candidate(fields)); err != nil {
		return nil, oops.Code("FORM_INVALID").
			With("form", "login").
			Wrap(err)
	}

	return &LoginForm{
		Email:    fields["email"],
		Password: fields["password"],
	}, nil
}
