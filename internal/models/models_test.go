package models

import (
	"errors"
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}

	base2 := BaseModel{ID: "fixed"}
	if err := base2.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base2.ID != "fixed" {
		t.Fatalf("expected existing ID to be kept, got %q", base2.ID)
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{input: "student", want: RoleStudent},
		{input: " Teacher ", want: RoleTeacher},
		{input: "admin", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestInvitationCodeUsability(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	two := 2

	cases := []struct {
		name string
		code InvitationCode
		want UnusableReason
	}{
		{"usable unlimited", InvitationCode{IsActive: true}, UnusableNone},
		{"inactive", InvitationCode{IsActive: false}, UnusableInactive},
		{"expired", InvitationCode{IsActive: true, ExpiresAt: &past}, UnusableExpired},
		{"expires exactly now", InvitationCode{IsActive: true, ExpiresAt: &now}, UnusableExpired},
		{"not yet expired", InvitationCode{IsActive: true, ExpiresAt: &future}, UnusableNone},
		{"full", InvitationCode{IsActive: true, MaxUses: &two, UseCount: 2}, UnusableCapacity},
		{"full and deactivated", InvitationCode{IsActive: false, MaxUses: &two, UseCount: 2}, UnusableCapacity},
		{"room left", InvitationCode{IsActive: true, MaxUses: &two, UseCount: 1}, UnusableNone},
	}
	for _, tc := range cases {
		if got := tc.code.Usability(now); got != tc.want {
			t.Fatalf("%s: usability = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestInvitationCodeRecordUseDeactivatesAtCapacity(t *testing.T) {
	two := 2
	code := InvitationCode{IsActive: true, MaxUses: &two}

	code.RecordUse()
	if !code.IsActive || code.UseCount != 1 {
		t.Fatalf("unexpected state after first use: active=%v count=%d", code.IsActive, code.UseCount)
	}
	if remaining := code.RemainingUses(); remaining == nil || *remaining != 1 {
		t.Fatalf("expected 1 remaining use, got %v", remaining)
	}

	code.RecordUse()
	if code.IsActive {
		t.Fatal("expected code to deactivate at capacity")
	}
	if remaining := code.RemainingUses(); *remaining != 0 {
		t.Fatalf("expected 0 remaining uses, got %d", *remaining)
	}

	unlimited := InvitationCode{IsActive: true}
	unlimited.RecordUse()
	if !unlimited.IsActive || unlimited.RemainingUses() != nil {
		t.Fatal("unlimited code must stay active with no remaining count")
	}
}

func TestAssignmentAcceptsSubmissions(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !(&Assignment{IsActive: true}).AcceptsSubmissions(now) {
		t.Fatal("active assignment without due date should accept submissions")
	}
	if !(&Assignment{IsActive: true, DueAt: &future}).AcceptsSubmissions(now) {
		t.Fatal("assignment due in the future should accept submissions")
	}
	if (&Assignment{IsActive: true, DueAt: &past}).AcceptsSubmissions(now) {
		t.Fatal("past due assignment must not accept submissions")
	}
	if (&Assignment{IsActive: false}).AcceptsSubmissions(now) {
		t.Fatal("inactive assignment must not accept submissions")
	}
}

func TestSubmissionAttachmentRejectsUpdates(t *testing.T) {
	var attachment SubmissionAttachment
	if err := attachment.BeforeUpdate(nil); !errors.Is(err, ErrAttachmentImmutable) {
		t.Fatalf("expected immutability error, got %v", err)
	}
}
