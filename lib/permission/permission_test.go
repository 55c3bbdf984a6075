// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := map[string]Classification{
		"Read":     ClassRead,
		"Edit":     ClassEdit,
		"Bash":     ClassBash,
		"WebFetch": ClassWeb,
		"Task":     ClassOther,
	}
	for tool, want := range cases {
		if got := Classify(tool); got != want {
			t.Errorf("Classify(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestRequiresApproval_Safe(t *testing.T) {
	if RequiresApproval(ModeSafe, ClassRead) {
		t.Error("safe mode should allow reads without approval")
	}
	for _, c := range []Classification{ClassEdit, ClassBash, ClassWeb} {
		if !RequiresApproval(ModeSafe, c) {
			t.Errorf("safe mode should require approval for %q", c)
		}
	}
}

func TestRequiresApproval_Default(t *testing.T) {
	if RequiresApproval(ModeDefault, ClassRead) || RequiresApproval(ModeDefault, ClassBash) {
		t.Error("default mode should allow read and bash without approval")
	}
	for _, c := range []Classification{ClassEdit, ClassWeb} {
		if !RequiresApproval(ModeDefault, c) {
			t.Errorf("default mode should require approval for %q", c)
		}
	}
}

func TestRequiresApproval_Yolo(t *testing.T) {
	for _, c := range []Classification{ClassRead, ClassEdit, ClassBash, ClassWeb, ClassOther} {
		if RequiresApproval(ModeYolo, c) {
			t.Errorf("yolo mode should never require approval, got true for %q", c)
		}
	}
}

func TestEvaluate_AllowsWithoutRequestWhenModePermits(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeDefault)

	resolution, _, req, err := arb.Evaluate("aleph-a", "Read", `{"file_path":"/tmp/x"}`, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if resolution != ResolutionAllow {
		t.Errorf("expected immediate allow, got %q", resolution)
	}
	if req != nil {
		t.Error("expected nil request for an auto-allowed call")
	}
}

func TestEvaluate_CreatesRequestWhenApprovalNeeded(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeSafe)

	_, _, req, err := arb.Evaluate("aleph-a", "Bash", `{"command":"ls"}`, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if req == nil {
		t.Fatal("expected a pending request for bash under safe mode")
	}
	if req.Classification != ClassBash {
		t.Errorf("unexpected classification: %q", req.Classification)
	}
}

func TestEvaluate_ComputesDiffForEditTools(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeDefault)

	_, _, req, err := arb.Evaluate("aleph-a", "Edit", `{"file_path":"/tmp/x"}`, func() (string, error) {
		return UnifiedDiff("/tmp/x", "/tmp/x", "old\n", "new\n"), nil
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if req == nil {
		t.Fatal("expected a pending request for edit under default mode")
	}
	if !strings.Contains(req.Diff, "-old") || !strings.Contains(req.Diff, "+new") {
		t.Errorf("expected diff to show removed/added lines, got: %q", req.Diff)
	}
}

func TestEvaluate_PropagatesDiffError(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeDefault)

	_, _, _, err := arb.Evaluate("aleph-a", "Edit", "{}", func() (string, error) {
		return "", errors.New("target file unreadable")
	})
	if err == nil {
		t.Fatal("expected diff computation error to propagate")
	}
}

func TestRequest_ResolveThenWait(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeSafe)
	_, _, req, _ := arb.Evaluate("aleph-a", "Bash", "{}", nil)

	go req.Resolve(ResolutionAllow, "")

	resolution, reason := req.Wait()
	if resolution != ResolutionAllow {
		t.Errorf("expected allow, got %q", resolution)
	}
	if reason != "" {
		t.Errorf("expected empty reason on allow, got %q", reason)
	}
}

func TestRequest_ResolveIsIdempotent(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeSafe)
	_, _, req, _ := arb.Evaluate("aleph-a", "Bash", "{}", nil)

	req.Resolve(ResolutionAllow, "")
	req.Resolve(ResolutionDeny, "too late")

	resolution, _ := req.Wait()
	if resolution != ResolutionAllow {
		t.Errorf("expected first resolution to stick, got %q", resolution)
	}
}

func TestInterrupt_DeniesPendingRequest(t *testing.T) {
	arb := New()
	arb.SetMode("aleph-a", ModeSafe)
	_, _, req, _ := arb.Evaluate("aleph-a", "Bash", "{}", nil)

	done := make(chan struct{})
	var resolution Resolution
	var reason string
	go func() {
		resolution, reason = req.Wait()
		close(done)
	}()

	arb.Interrupt("aleph-a")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after Interrupt")
	}
	if resolution != ResolutionDeny || reason != "interrupted" {
		t.Errorf("expected deny/interrupted, got %q/%q", resolution, reason)
	}
}

func TestUnifiedDiff_ShowsHeaderAndChanges(t *testing.T) {
	diff := UnifiedDiff("a.txt", "a.txt", "line1\nline2\n", "line1\nline2 changed\n")
	if !strings.Contains(diff, "--- a.txt") || !strings.Contains(diff, "+++ a.txt") {
		t.Errorf("expected unified diff headers, got: %q", diff)
	}
	if !strings.Contains(diff, "-line2") || !strings.Contains(diff, "+line2 changed") {
		t.Errorf("expected changed line to appear, got: %q", diff)
	}
}
