package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrVersion,
		ErrCatalog,
		ErrSessionFull,
		ErrNoPermission,
		ErrPrecondition,
		ErrNoResource,
		ErrProtocol,
		ErrRateLimit,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
	if got := NormalizeCode("E_NOT_DEFINED"); got != ErrInternal {
		t.Fatalf("normalize: got %q", got)
	}
}
