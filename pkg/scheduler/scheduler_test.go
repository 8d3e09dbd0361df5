package scheduler

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEventChannel_IncludesTenantID(t *testing.T) {
	id := uuid.New()
	ch := EventChannel(id)
	if !strings.Contains(ch, id.String()) {
		t.Fatalf("EventChannel(%s) = %q, want it to contain the tenant id", id, ch)
	}
	if !strings.HasPrefix(ch, "ordermesh:tenant:") {
		t.Fatalf("EventChannel() = %q, want ordermesh:tenant: prefix", ch)
	}
}

func TestEventChannel_DistinctTenantsDistinctChannels(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if EventChannel(a) == EventChannel(b) {
		t.Fatal("expected distinct tenants to get distinct channels")
	}
}
