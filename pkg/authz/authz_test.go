package authz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Shadow(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "shadow")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeShadow {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "nope")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubjectFromUserID(t *testing.T) {
	if got := SubjectFromUserID("  U-42 "); got != "user:u-42" {
		t.Fatalf("subject=%q", got)
	}
	if got := SubjectFromUserID(""); got != "user:anonymous" {
		t.Fatalf("subject=%q", got)
	}
}

func TestObject(t *testing.T) {
	if got := Object(ResourceApp, " a1 "); got != "app:a1" {
		t.Fatalf("object=%q", got)
	}
}

func writeTestPolicy(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	policy := filepath.Join(dir, "policy.csv")

	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, []byte("p, user:alice, environment:prod, rollback\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return model, policy
}

func TestCheck_Enforce(t *testing.T) {
	model, policy := writeTestPolicy(t)
	a, err := NewAuthorizer(model, policy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	allowed, enforced, err := a.Check("user:alice", RelationRollback, ResourceEnvironment, "prod")
	if err != nil || !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	allowed, enforced, err = a.Check("user:bob", RelationRollback, ResourceEnvironment, "prod")
	if err != nil || allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}

func TestCheck_ShadowNeverBlocks(t *testing.T) {
	model, policy := writeTestPolicy(t)
	a, err := NewAuthorizer(model, policy, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err := a.Check("user:bob", RelationRollback, ResourceEnvironment, "prod")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}

func TestCheck_Disabled(t *testing.T) {
	model, policy := writeTestPolicy(t)
	a, err := NewAuthorizer(model, policy, ModeDisabled)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err := a.Check("user:anyone", RelationViewVariables, ResourceApp, "x")
	if err != nil || !allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}
