package exception

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
)

func TestNewSingleVulnerabilityRequest(t *testing.T) {
	assetID := shared.NewID()
	future := time.Now().Add(30 * 24 * time.Hour)

	tests := []struct {
		name          string
		assetID       shared.ID
		cveID         string
		justification string
		requestedBy   string
		expiresAt     time.Time
		wantErr       bool
	}{
		{
			name:          "valid request",
			assetID:       assetID,
			cveID:         "CVE-2024-12345",
			justification: "patching window blocked by change freeze until Q4",
			requestedBy:   "alice",
			expiresAt:     future,
			wantErr:       false,
		},
		{
			name:          "zero asset ID",
			assetID:       shared.ID{},
			cveID:         "CVE-2024-12345",
			justification: "patching window blocked by change freeze until Q4",
			requestedBy:   "alice",
			expiresAt:     future,
			wantErr:       true,
		},
		{
			name:          "invalid CVE format",
			assetID:       assetID,
			cveID:         "GHSA-xxxx-yyyy",
			justification: "patching window blocked by change freeze until Q4",
			requestedBy:   "alice",
			expiresAt:     future,
			wantErr:       true,
		},
		{
			name:          "justification too short",
			assetID:       assetID,
			cveID:         "CVE-2024-12345",
			justification: "because",
			requestedBy:   "alice",
			expiresAt:     future,
			wantErr:       true,
		},
		{
			name:          "justification too long",
			assetID:       assetID,
			cveID:         "CVE-2024-12345",
			justification: strings.Repeat("a", MaxJustificationLength+1),
			requestedBy:   "alice",
			expiresAt:     future,
			wantErr:       true,
		},
		{
			name:          "empty requester",
			assetID:       assetID,
			cveID:         "CVE-2024-12345",
			justification: "patching window blocked by change freeze until Q4",
			requestedBy:   "  ",
			expiresAt:     future,
			wantErr:       true,
		},
		{
			name:          "expiration in the past",
			assetID:       assetID,
			cveID:         "CVE-2024-12345",
			justification: "patching window blocked by change freeze until Q4",
			requestedBy:   "alice",
			expiresAt:     time.Now().Add(-time.Hour),
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewSingleVulnerabilityRequest(tt.assetID, tt.cveID, tt.justification, tt.requestedBy, tt.expiresAt)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSingleVulnerabilityRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if req.Status() != RequestStatusPending {
				t.Errorf("Status = %v, want %v", req.Status(), RequestStatusPending)
			}
			if req.Scope() != ScopeSingleVulnerability {
				t.Errorf("Scope = %v, want %v", req.Scope(), ScopeSingleVulnerability)
			}
			if req.AssetID() == nil || *req.AssetID() != tt.assetID {
				t.Error("AssetID not captured")
			}
		})
	}
}

func TestNewCVEPatternRequest(t *testing.T) {
	future := time.Now().Add(7 * 24 * time.Hour)

	t.Run("valid pattern request", func(t *testing.T) {
		req, err := NewCVEPatternRequest("CVE-2021-44228", "log4j not reachable in our deployment topology", "bob", future)
		if err != nil {
			t.Fatalf("NewCVEPatternRequest() unexpected error: %v", err)
		}
		if req.Scope() != ScopeCVEPattern {
			t.Errorf("Scope = %v, want %v", req.Scope(), ScopeCVEPattern)
		}
		if req.AssetID() != nil {
			t.Error("AssetID should be nil for pattern scope")
		}
	})

	t.Run("lowercase CVE is normalized", func(t *testing.T) {
		req, err := NewCVEPatternRequest("cve-2021-44228", "log4j not reachable in our deployment topology", "bob", future)
		if err != nil {
			t.Fatalf("NewCVEPatternRequest() unexpected error: %v", err)
		}
		if req.CVEID() != "CVE-2021-44228" {
			t.Errorf("CVEID = %q, want %q", req.CVEID(), "CVE-2021-44228")
		}
	})
}

func pendingRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewCVEPatternRequest("CVE-2024-0001", "vendor fix scheduled for next maintenance window", "alice", time.Now().Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("fixture request: %v", err)
	}
	return req
}

func TestRequest_Approve(t *testing.T) {
	t.Run("approve pending request", func(t *testing.T) {
		req := pendingRequest(t)

		if err := req.Approve("carol", "accepted until window"); err != nil {
			t.Fatalf("Approve() unexpected error: %v", err)
		}

		if req.Status() != RequestStatusApproved {
			t.Errorf("Status = %v, want %v", req.Status(), RequestStatusApproved)
		}
		if req.DecidedBy() == nil || *req.DecidedBy() != "carol" {
			t.Error("DecidedBy not set correctly")
		}
		if req.DecidedAt() == nil {
			t.Error("DecidedAt should be set")
		}
		if req.DecisionNote() != "accepted until window" {
			t.Errorf("DecisionNote = %q", req.DecisionNote())
		}
	})

	t.Run("cannot approve twice", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		err := req.Approve("carol", "")
		if err == nil {
			t.Error("Approve() should fail for already approved request")
		}
		if !errors.Is(err, shared.ErrConflict) {
			t.Errorf("error = %v, want conflict", err)
		}
	})

	t.Run("cannot approve rejected request", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Reject("carol", "too broad")

		if err := req.Approve("carol", ""); err == nil {
			t.Error("Approve() should fail for rejected request")
		}
	})

	t.Run("empty approver fails", func(t *testing.T) {
		req := pendingRequest(t)

		if err := req.Approve("  ", ""); err == nil {
			t.Error("Approve() should require an approver")
		}
		if req.Status() != RequestStatusPending {
			t.Error("failed approval must not change status")
		}
	})
}

func TestRequest_Reject(t *testing.T) {
	t.Run("reject pending request", func(t *testing.T) {
		req := pendingRequest(t)

		if err := req.Reject("carol", "scope is too broad"); err != nil {
			t.Fatalf("Reject() unexpected error: %v", err)
		}

		if req.Status() != RequestStatusRejected {
			t.Errorf("Status = %v, want %v", req.Status(), RequestStatusRejected)
		}
		if req.DecisionNote() != "scope is too broad" {
			t.Errorf("DecisionNote = %q", req.DecisionNote())
		}
	})

	t.Run("rejection requires a comment", func(t *testing.T) {
		req := pendingRequest(t)

		err := req.Reject("carol", "   ")
		if err == nil {
			t.Error("Reject() should require a comment")
		}
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})

	t.Run("cannot reject approved request", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		if err := req.Reject("carol", "reason"); err == nil {
			t.Error("Reject() should fail for approved request")
		}
	})
}

func TestRequest_Cancel(t *testing.T) {
	t.Run("requester cancels own pending request", func(t *testing.T) {
		req := pendingRequest(t)

		if err := req.Cancel("alice"); err != nil {
			t.Fatalf("Cancel() unexpected error: %v", err)
		}
		if req.Status() != RequestStatusCancelled {
			t.Errorf("Status = %v, want %v", req.Status(), RequestStatusCancelled)
		}
	})

	t.Run("other user cannot cancel", func(t *testing.T) {
		req := pendingRequest(t)

		err := req.Cancel("mallory")
		if err == nil {
			t.Error("Cancel() should fail for non-requester")
		}
		if !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("error = %v, want forbidden", err)
		}
		if req.Status() != RequestStatusPending {
			t.Error("failed cancel must not change status")
		}
	})

	t.Run("cannot cancel decided request", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		if err := req.Cancel("alice"); err == nil {
			t.Error("Cancel() should fail after decision")
		}
	})
}

func TestRequest_Expire(t *testing.T) {
	t.Run("expire approved request past expiry", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		if err := req.Expire(req.ExpiresAt().Add(time.Minute)); err != nil {
			t.Fatalf("Expire() unexpected error: %v", err)
		}
		if req.Status() != RequestStatusExpired {
			t.Errorf("Status = %v, want %v", req.Status(), RequestStatusExpired)
		}
	})

	t.Run("cannot expire before expiry", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		if err := req.Expire(time.Now()); err == nil {
			t.Error("Expire() should fail before expiration")
		}
	})

	t.Run("cannot expire pending request", func(t *testing.T) {
		req := pendingRequest(t)

		if err := req.Expire(req.ExpiresAt().Add(time.Minute)); err == nil {
			t.Error("Expire() should fail for pending request")
		}
	})
}

func TestRequest_EffectiveStatus(t *testing.T) {
	req := pendingRequest(t)
	_ = req.Approve("carol", "")

	t.Run("approved before expiry", func(t *testing.T) {
		if got := req.EffectiveStatus(time.Now()); got != RequestStatusApproved {
			t.Errorf("EffectiveStatus = %v, want %v", got, RequestStatusApproved)
		}
	})

	t.Run("approved past expiry reads expired", func(t *testing.T) {
		if got := req.EffectiveStatus(req.ExpiresAt().Add(time.Second)); got != RequestStatusExpired {
			t.Errorf("EffectiveStatus = %v, want %v", got, RequestStatusExpired)
		}
	})

	t.Run("pending never reads expired", func(t *testing.T) {
		pending := pendingRequest(t)
		if got := pending.EffectiveStatus(pending.ExpiresAt().Add(time.Hour)); got != RequestStatusPending {
			t.Errorf("EffectiveStatus = %v, want %v", got, RequestStatusPending)
		}
	})
}

func TestException_Covers(t *testing.T) {
	assetA := shared.NewID()
	assetB := shared.NewID()
	expires := time.Now().Add(24 * time.Hour)

	single := ReconstituteException(ExceptionData{
		ID:        shared.NewID(),
		RequestID: shared.NewID(),
		Scope:     ScopeSingleVulnerability,
		AssetID:   &assetA,
		CVEID:     "CVE-2024-1111",
		GrantedBy: "carol",
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	})
	pattern := ReconstituteException(ExceptionData{
		ID:        shared.NewID(),
		RequestID: shared.NewID(),
		Scope:     ScopeCVEPattern,
		CVEID:     "CVE-2024-2222",
		GrantedBy: "carol",
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	})

	tests := []struct {
		name    string
		ex      *Exception
		assetID shared.ID
		cveID   string
		want    bool
	}{
		{"single scope matches its pair", single, assetA, "CVE-2024-1111", true},
		{"single scope other asset", single, assetB, "CVE-2024-1111", false},
		{"single scope other CVE", single, assetA, "CVE-2024-9999", false},
		{"pattern matches any asset", pattern, assetB, "CVE-2024-2222", true},
		{"pattern other CVE", pattern, assetB, "CVE-2024-3333", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ex.Covers(tt.assetID, tt.cveID); got != tt.want {
				t.Errorf("Covers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestException_IsActive(t *testing.T) {
	ex := ReconstituteException(ExceptionData{
		ID:        shared.NewID(),
		RequestID: shared.NewID(),
		Scope:     ScopeCVEPattern,
		CVEID:     "CVE-2024-1111",
		GrantedBy: "carol",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	})

	if !ex.IsActive(time.Now()) {
		t.Error("exception before expiry should be active")
	}
	if ex.IsActive(ex.ExpiresAt()) {
		t.Error("exception at the expiry instant should be inactive")
	}
}

func TestNewExceptionFromRequest(t *testing.T) {
	t.Run("approved request materializes", func(t *testing.T) {
		req := pendingRequest(t)
		_ = req.Approve("carol", "")

		ex, err := NewExceptionFromRequest(req)
		if err != nil {
			t.Fatalf("NewExceptionFromRequest() unexpected error: %v", err)
		}
		if ex.RequestID() != req.ID() {
			t.Error("RequestID mismatch")
		}
		if ex.CVEID() != req.CVEID() {
			t.Error("CVEID mismatch")
		}
		if ex.GrantedBy() != "carol" {
			t.Errorf("GrantedBy = %q, want %q", ex.GrantedBy(), "carol")
		}
		if !ex.ExpiresAt().Equal(req.ExpiresAt()) {
			t.Error("ExpiresAt mismatch")
		}
	})

	t.Run("pending request cannot materialize", func(t *testing.T) {
		req := pendingRequest(t)

		if _, err := NewExceptionFromRequest(req); err == nil {
			t.Error("NewExceptionFromRequest() should fail for pending request")
		}
	})
}

func TestScope_IsValid(t *testing.T) {
	tests := []struct {
		scope Scope
		want  bool
	}{
		{ScopeSingleVulnerability, true},
		{ScopeCVEPattern, true},
		{Scope("invalid"), false},
		{Scope(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			if got := tt.scope.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestStatus_IsValid(t *testing.T) {
	tests := []struct {
		status RequestStatus
		want   bool
	}{
		{RequestStatusPending, true},
		{RequestStatusApproved, true},
		{RequestStatusRejected, true},
		{RequestStatusExpired, true},
		{RequestStatusCancelled, true},
		{RequestStatus("invalid"), false},
		{RequestStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
