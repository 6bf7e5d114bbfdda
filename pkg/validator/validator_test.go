package validator

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("expected validator to be created")
	}
	if v.validate == nil {
		t.Fatal("expected internal validator to be initialized")
	}
}

func TestValidate_RequiredField(t *testing.T) {
	v := New()

	type TestStruct struct {
		Name string `validate:"required"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{
			name:    "valid - name provided",
			input:   TestStruct{Name: "test"},
			wantErr: false,
		},
		{
			name:    "invalid - name empty",
			input:   TestStruct{Name: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSeverity(t *testing.T) {
	v := New()

	type TestStruct struct {
		Severity string `validate:"required,severity"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid - critical", input: TestStruct{Severity: "critical"}, wantErr: false},
		{name: "valid - high", input: TestStruct{Severity: "high"}, wantErr: false},
		{name: "valid - mixed case", input: TestStruct{Severity: "Medium"}, wantErr: false},
		{name: "invalid - unknown", input: TestStruct{Severity: "catastrophic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCVEID(t *testing.T) {
	v := New()

	type TestStruct struct {
		CVE string `validate:"required,cve_id"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid", input: TestStruct{CVE: "CVE-2024-12345"}, wantErr: false},
		{name: "valid - lowercase normalized", input: TestStruct{CVE: "cve-2021-44228"}, wantErr: false},
		{name: "invalid - short sequence", input: TestStruct{CVE: "CVE-2024-1"}, wantErr: true},
		{name: "invalid - no prefix", input: TestStruct{CVE: "2024-12345"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateExceptionScope(t *testing.T) {
	v := New()

	type TestStruct struct {
		Scope string `validate:"required,exception_scope"`
	}

	if err := v.Validate(TestStruct{Scope: "single_vulnerability"}); err != nil {
		t.Errorf("expected single_vulnerability to be valid, got %v", err)
	}
	if err := v.Validate(TestStruct{Scope: "cve_pattern"}); err != nil {
		t.Errorf("expected cve_pattern to be valid, got %v", err)
	}
	if err := v.Validate(TestStruct{Scope: "global"}); err == nil {
		t.Error("expected global to be invalid")
	}
}

func TestValidateImportMode(t *testing.T) {
	v := New()

	type TestStruct struct {
		Mode string `validate:"required,import_mode"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid - days_open", input: TestStruct{Mode: "days_open"}, wantErr: false},
		{name: "valid - patch publication date", input: TestStruct{Mode: "patch_publication_date"}, wantErr: false},
		{name: "valid - hyphenated", input: TestStruct{Mode: "days-open"}, wantErr: false},
		{name: "invalid", input: TestStruct{Mode: "first_seen"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ErrorFields(t *testing.T) {
	v := New()

	type TestStruct struct {
		CVEID    string `validate:"required,cve_id"`
		Severity string `validate:"required,severity"`
	}

	err := v.Validate(TestStruct{CVEID: "bogus", Severity: "extreme"})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
	if verrs[0].Field != "cveid" {
		t.Errorf("unexpected field name %q", verrs[0].Field)
	}
	if verrs[1].Field != "severity" {
		t.Errorf("unexpected field name %q", verrs[1].Field)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hostname", "hostname"},
		{"ExpiresAt", "expires_at"},
		{"PerPage", "per_page"},
		{"CVEID", "cveid"},
		{"VulnerabilityID", "vulnerability_id"},
		{"CVSSScore", "cvss_score"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
